package web

import (
	"bytes"
	"html/template"

	"github.com/jaminalder/hotseat-tictactoe/internal/app"
	"github.com/jaminalder/hotseat-tictactoe/internal/domain"
)

type templates struct {
	game  *template.Template
	board *template.Template
	index *template.Template
}

func loadTemplates() *templates {
	base := template.Must(template.New("base").Parse(baseTemplate))
	// Define the board template within the same set so game can include it
	template.Must(base.New("board").Parse(boardTemplate))
	index := template.Must(template.Must(base.Clone()).New("content").Parse(indexTemplate))
	game := template.Must(template.Must(base.Clone()).New("content").Parse(gameTemplate))
	// Standalone board template used for fragment rendering
	board := template.Must(template.New("board_only").Parse(boardTemplate))
	return &templates{game: game, board: board, index: index}
}

func renderTemplate(t *template.Template, name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	if name == "" {
		err = t.Execute(&buf, data)
	} else {
		err = t.ExecuteTemplate(&buf, name, data)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type cellView struct {
	Index    int
	Mark     string
	Class    string
	Win      bool
	Disabled bool
}

type boardView struct {
	ID     string
	Rows   [3][3]cellView
	Status string
	Over   bool
	Error  string
}

func newBoardView(gs app.GameState, errMsg string) boardView {
	s := gs.State
	v := boardView{
		ID:     gs.ID,
		Status: domain.StatusMessage(s),
		Over:   s.Status.Terminal(),
		Error:  errMsg,
	}
	for i, m := range s.Board {
		c := cellView{
			Index:    i,
			Mark:     m.String(),
			Win:      s.HasLine && s.Line.Contains(i),
			Disabled: m != domain.Empty || v.Over,
		}
		switch m {
		case domain.X:
			c.Class = "x"
		case domain.O:
			c.Class = "o"
		}
		v.Rows[i/3][i%3] = c
	}
	return v
}

const baseTemplate = `<!doctype html><html><head>
<meta charset="utf-8"/>
<title>Tic Tac Toe</title>
<script src="https://unpkg.com/htmx.org@1.9.12"></script>
<script src="https://unpkg.com/htmx.org@1.9.12/dist/ext/sse.js"></script>
<style>
.container{font-family:sans-serif;text-align:center;margin-top:2rem}
.row{display:flex;justify-content:center}
.cell{width:80px;height:80px;margin:2px;font-size:2rem;background:#f0f0f0;border:1px solid #999}
.cell.x{color:#e53935}.cell.o{color:#1e88e5}
.cell.win{background:#c8e6c9}
.status{margin:1rem;font-size:1.2rem}
.alert{color:#b71c1c}
</style>
</head><body><div class="container">{{template "content" .}}</div></body></html>`

const indexTemplate = `<h1>Tic Tac Toe</h1><form action="/game" method="post"><button>New Game</button></form>`

const gameTemplate = `<h1>Tic Tac Toe</h1>
<div hx-ext="sse" sse-connect="/game/{{.ID}}/events">
  <div id="board-container" sse-swap="board">{{template "board" .Board}}</div>
</div>`

const boardTemplate = `<div id="board" class="board">
  {{if .Error}}<div class="alert">{{.Error}}</div>{{end}}
  <div id="status" class="status">{{.Status}}</div>
  {{range .Rows}}<div class="row">
    {{range .}}<form hx-post="/game/{{$.ID}}/play" hx-target="#board" hx-swap="outerHTML">
      <input type="hidden" name="cell" value="{{.Index}}">
      <button type="submit" class="cell{{if .Class}} {{.Class}}{{end}}{{if .Win}} win{{end}}" data-index="{{.Index}}"{{if .Disabled}} disabled{{end}}>{{.Mark}}</button>
    </form>{{end}}
  </div>{{end}}
  <form hx-post="/game/{{.ID}}/reset" hx-target="#board" hx-swap="outerHTML">
    <button id="restart" type="submit">Restart Game</button>
  </form>
</div>`
