// Package luogu verifies a player's external identity through a Luogu paste.
//
// The proof protocol: the player creates a public paste containing the
// configured validation sentence, then presents (uid, paste-id) at login. The
// verifier fetches the paste page, extracts the JSON payload the site injects
// into its HTML, and checks that the paste author matches the claimed uid and
// that the paste text contains the sentence.
package luogu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var (
	// ErrUnavailable means the paste service could not be reached or did not
	// answer in time. Logins fail, but callers should report the service, not
	// the player, as the problem.
	ErrUnavailable = errors.New("luogu: paste service unavailable")

	// ErrRejected means the paste was fetched but does not prove the claimed
	// identity.
	ErrRejected = errors.New("luogu: paste verification rejected")
)

const (
	defaultBaseURL = "https://www.luogu.com"
	injectionMark  = "window._feInjection = JSON.parse(decodeURIComponent(\""

	maxUIDLen   = 10
	maxPasteLen = 50
)

// Verifier fetches and checks Luogu pastes.
type Verifier struct {
	client         *http.Client
	baseURL        string
	validationText string
}

// NewVerifier creates a verifier. baseURL is overridable for tests; an empty
// string selects the public site.
func NewVerifier(baseURL, validationText string, timeout time.Duration) *Verifier {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Verifier{
		client:         &http.Client{Timeout: timeout},
		baseURL:        strings.TrimRight(baseURL, "/"),
		validationText: validationText,
	}
}

// Verify checks that the paste with the given id was authored by uid and
// contains the validation sentence. A nil return means the proof holds.
func (v *Verifier) Verify(ctx context.Context, uid, paste string) error {
	if !ValidUID(uid) {
		return fmt.Errorf("%w: malformed uid", ErrRejected)
	}
	if paste == "" || len(paste) > maxPasteLen {
		return fmt.Errorf("%w: malformed paste id", ErrRejected)
	}

	data, err := v.fetchPasteData(ctx, paste)
	if err != nil {
		return err
	}

	if fmt.Sprintf("%d", data.User.UID) != uid {
		return fmt.Errorf("%w: paste author %d does not match uid %s", ErrRejected, data.User.UID, uid)
	}
	if !strings.Contains(data.Data, v.validationText) {
		return fmt.Errorf("%w: validation text not found in paste", ErrRejected)
	}
	return nil
}

// pasteData is the slice of the injected payload the verifier cares about.
type pasteData struct {
	ID   string `json:"id"`
	Data string `json:"data"`
	User struct {
		UID int `json:"uid"`
	} `json:"user"`
}

type feInjection struct {
	CurrentData struct {
		Paste  *pasteData `json:"paste"`
		Pastes *struct {
			Result []pasteData `json:"result"`
		} `json:"pastes"`
	} `json:"currentData"`
}

func (v *Verifier) fetchPasteData(ctx context.Context, paste string) (*pasteData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/paste/"+url.PathEscape(paste), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: paste not found", ErrRejected)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var encoded string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		start := strings.Index(text, injectionMark)
		if start < 0 {
			return true
		}
		rest := text[start+len(injectionMark):]
		end := strings.Index(rest, `"))`)
		if end < 0 {
			return true
		}
		encoded = rest[:end]
		return false
	})
	if encoded == "" {
		return nil, fmt.Errorf("%w: injected payload not found", ErrRejected)
	}

	decoded, err := url.QueryUnescape(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: payload decode: %v", ErrRejected, err)
	}

	var payload feInjection
	if err := json.Unmarshal([]byte(decoded), &payload); err != nil {
		return nil, fmt.Errorf("%w: payload parse: %v", ErrRejected, err)
	}

	if p := payload.CurrentData.Paste; p != nil {
		return p, nil
	}
	// Paste list pages nest the records one level deeper.
	if ps := payload.CurrentData.Pastes; ps != nil {
		for i := range ps.Result {
			if ps.Result[i].ID == paste {
				return &ps.Result[i], nil
			}
		}
	}
	return nil, fmt.Errorf("%w: paste record missing from payload", ErrRejected)
}

// ValidUID reports whether uid looks like a Luogu user id: 1-10 digits.
func ValidUID(uid string) bool {
	if uid == "" || len(uid) > maxUIDLen {
		return false
	}
	for _, c := range uid {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
