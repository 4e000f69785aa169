// Command watch renders a live terminal view of the arena by polling the
// server's public map endpoint. It is an operator tool; it never
// authenticates and never moves anything.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/codingsnake/server/game"
)

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type statusData struct {
	MapSize struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"map_size"`
	RoundTime int    `json:"round_time"`
	Version   string `json:"version"`
}

type mapData struct {
	MapState game.FullSnapshot `json:"map_state"`
}

type statusMsg statusData
type mapMsg game.FullSnapshot
type errMsg struct{ err error }
type tickMsg time.Time

type model struct {
	serverURL string
	client    *http.Client
	interval  time.Duration

	width  int
	height int
	snap   *game.FullSnapshot
	err    error
}

func initialModel(serverURL string, interval time.Duration) model {
	return model{
		serverURL: strings.TrimRight(serverURL, "/"),
		client:    &http.Client{Timeout: 5 * time.Second},
		interval:  interval,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.fetchStatus, m.fetchMap, m.tickCmd())
}

func (m model) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) fetchStatus() tea.Msg {
	var data statusData
	if err := m.get("/api/status", &data); err != nil {
		return errMsg{err}
	}
	return statusMsg(data)
}

func (m model) fetchMap() tea.Msg {
	var data mapData
	if err := m.get("/api/game/map", &data); err != nil {
		return errMsg{err}
	}
	return mapMsg(data.MapState)
}

func (m model) get(path string, out any) error {
	resp, err := m.client.Get(m.serverURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return err
	}
	if env.Code != 0 {
		return fmt.Errorf("server code %d: %s", env.Code, env.Msg)
	}
	return json.Unmarshal(env.Data, out)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case statusMsg:
		m.width = msg.MapSize.Width
		m.height = msg.MapSize.Height
		m.err = nil
	case mapMsg:
		snap := game.FullSnapshot(msg)
		m.snap = &snap
		m.err = nil
	case errMsg:
		m.err = msg.err
	case tickMsg:
		return m, tea.Batch(m.fetchMap, m.tickCmd())
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString("snake arena watcher (q to quit)\n\n")

	if m.err != nil {
		fmt.Fprintf(&b, "error: %v\n", m.err)
		return b.String()
	}
	if m.snap == nil || m.width == 0 || m.height == 0 {
		b.WriteString("waiting for server...\n")
		return b.String()
	}

	snap := m.snap
	fmt.Fprintf(&b, "round %d | players %d | food %d\n\n", snap.Round, len(snap.Players), len(snap.Foods))

	food := make(map[game.Point]bool, len(snap.Foods))
	for _, f := range snap.Foods {
		food[f] = true
	}
	head := make(map[game.Point]byte)
	body := make(map[game.Point]byte)
	for i, p := range snap.Players {
		mark := byte('A' + i%26)
		for j, cell := range p.Blocks {
			if j == 0 {
				head[cell] = mark
			} else {
				body[cell] = mark + 'a' - 'A'
			}
		}
	}

	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			p := game.Point{X: x, Y: y}
			switch {
			case head[p] != 0:
				b.WriteByte(head[p])
			case body[p] != 0:
				b.WriteByte(body[p])
			case food[p]:
				b.WriteByte('*')
			default:
				b.WriteByte('.')
			}
		}
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	for i, p := range snap.Players {
		fmt.Fprintf(&b, "%c %-20s len=%-3d inv=%d\n", 'A'+i%26, p.Name, p.Length, p.InvincibleRounds)
	}
	return b.String()
}

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "Server base URL")
	interval := flag.Duration("interval", 500*time.Millisecond, "Poll interval")
	flag.Parse()

	p := tea.NewProgram(initialModel(*serverURL, *interval))
	if _, err := p.Run(); err != nil {
		log.Fatalf("watcher failed: %v", err)
	}
}
