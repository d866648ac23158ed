package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/labstack/echo/v4"
	"github.com/smallnest/researchcanvas/canvas"
	"github.com/smallnest/researchcanvas/graph"
	"github.com/smallnest/researchcanvas/models"
	"github.com/smallnest/researchcanvas/store"
	"github.com/smallnest/researchcanvas/tool"
)

// ThreadState is the body of GET /threads/:id/state.
type ThreadState struct {
	ThreadID     string            `json:"thread_id"`
	Values       canvas.AgentState `json:"values"`
	Next         []string          `json:"next"`
	Interrupted  bool              `json:"interrupted"`
	Version      int               `json:"version"`
	CheckpointID string            `json:"checkpoint_id"`
	Node         string            `json:"node"`
	CreatedAt    time.Time         `json:"created_at"`
}

func newThreadState(threadID string, snap *graph.StateSnapshot[canvas.AgentState]) ThreadState {
	next := snap.Next
	if next == nil {
		next = []string{}
	}
	return ThreadState{
		ThreadID:     threadID,
		Values:       snap.Values.Normalize(),
		Next:         next,
		Interrupted:  snap.Interrupted(),
		Version:      snap.Version,
		CheckpointID: snap.CheckpointID,
		Node:         snap.NodeName,
		CreatedAt:    snap.CreatedAt,
	}
}

// StateUpdate is the body of PUT /threads/:id/state. Only the fields that
// are present are changed.
type StateUpdate struct {
	Model         *string            `json:"model,omitempty"`
	CampaignBrief *string            `json:"campaign_brief,omitempty"`
	Report        *string            `json:"report,omitempty"`
	Resources     *[]canvas.Resource `json:"resources,omitempty"`
}

// ResumeRequest is the body of POST /threads/:id/resume.
type ResumeRequest struct {
	ToolCallID string `json:"tool_call_id,omitempty"`
	Content    string `json:"content"`
}

// lookupError maps store and graph errors of thread endpoints to HTTP errors.
func lookupError(err error) error {
	switch {
	case errors.Is(err, store.ErrCheckpointNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "thread not found").SetInternal(err)
	case errors.Is(err, graph.ErrNotInterrupted):
		return echo.NewHTTPError(http.StatusConflict, "thread is not waiting for confirmation").SetInternal(err)
	default:
		return turnError(err)
	}
}

func (s *Server) getState(c echo.Context) error {
	id := c.Param("id")
	snap, err := s.runner.State(c.Request().Context(), id)
	if err != nil {
		return lookupError(err)
	}
	return c.JSON(http.StatusOK, newThreadState(id, snap))
}

func (s *Server) putState(c echo.Context) error {
	id := c.Param("id")
	var upd StateUpdate
	if err := c.Bind(&upd); err != nil {
		return err
	}
	if upd.Model != nil && *upd.Model != "" {
		if _, err := models.Parse(*upd.Model); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	snap, err := s.runner.Update(c.Request().Context(), id, func(st canvas.AgentState) canvas.AgentState {
		if upd.Model != nil {
			st.Model = *upd.Model
		}
		if upd.CampaignBrief != nil {
			st.CampaignBrief = *upd.CampaignBrief
		}
		if upd.Report != nil {
			st.Report = *upd.Report
		}
		if upd.Resources != nil {
			st.Resources = *upd.Resources
		}
		return st
	})
	if err != nil {
		return lookupError(err)
	}
	return c.JSON(http.StatusOK, newThreadState(id, snap))
}

func (s *Server) history(c echo.Context) error {
	id := c.Param("id")
	snaps, err := s.runner.History(c.Request().Context(), id)
	if err != nil {
		return lookupError(err)
	}
	if len(snaps) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "thread not found")
	}
	out := make([]ThreadState, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, newThreadState(id, snap))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) resume(c echo.Context) error {
	id := c.Param("id")
	var req ResumeRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	ctx := models.WithProvider(c.Request().Context(), s.defaultProvider)
	res, err := s.runner.Resume(ctx, id, req.ToolCallID, req.Content)
	if err != nil {
		return lookupError(err)
	}
	c.Response().Header().Set(HeaderThreadID, id)

	model := string(s.defaultProvider)
	if res.State.Model != "" {
		model = res.State.Model
	}
	return c.JSON(http.StatusOK, s.completion("response-"+id, model, res))
}

func (s *Server) deleteThread(c echo.Context) error {
	if err := s.runner.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return lookupError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// report serves the campaign draft as markdown, or as sanitized HTML with
// format=html.
func (s *Server) report(c echo.Context) error {
	snap, err := s.runner.State(c.Request().Context(), c.Param("id"))
	if err != nil {
		return lookupError(err)
	}

	switch c.QueryParam("format") {
	case "", "markdown", "md":
		return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", []byte(snap.Values.Report))
	case "html":
		return c.HTML(http.StatusOK, renderReport(snap.Values.Report))
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "format must be markdown or html")
	}
}

func renderReport(md string) string {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse([]byte(md))
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank})
	return tool.SanitizeRichText(string(markdown.Render(doc, renderer)))
}

// diagram serves the step graph as a Mermaid, DOT or ASCII diagram.
func (s *Server) diagram(c echo.Context) error {
	exporter := graph.NewExporter(s.runner.Graph())
	switch c.QueryParam("format") {
	case "", "mermaid":
		return c.String(http.StatusOK, exporter.DrawMermaidWithOptions(graph.MermaidOptions{
			Direction:  "TD",
			Interrupts: []string{canvas.NodeDelete},
		}))
	case "dot":
		return c.String(http.StatusOK, exporter.DrawDOT())
	case "ascii":
		return c.String(http.StatusOK, exporter.DrawASCII())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "format must be mermaid, dot or ascii")
	}
}
