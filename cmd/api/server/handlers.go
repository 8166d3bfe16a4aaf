package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Tsinling0525/canvasflow/format/n8n"
	"github.com/Tsinling0525/canvasflow/model"
	"github.com/Tsinling0525/canvasflow/session"
)

type runRequest struct {
	Inputs map[model.ID]any `json:"inputs"`
}

type adHocRequest struct {
	Workflow model.Workflow   `json:"workflow"`
	Inputs   map[model.ID]any `json:"inputs"`
}

// bindOptional decodes a JSON body if one was sent.
func bindOptional(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (h *handlers) listNodeTypes(c *gin.Context) {
	sendSuccess(c, map[string]interface{}{"nodeTypes": h.app.Engine.Registry().List()})
}

// Workflows

func (h *handlers) listWorkflows(c *gin.Context) {
	wfs, err := h.app.Storage.Workflows.List(c.Request.Context())
	if err != nil {
		sendErr(c, err)
		return
	}
	sendSuccess(c, map[string]interface{}{"workflows": wfs})
}

func (h *handlers) createWorkflow(c *gin.Context) {
	var wf model.Workflow
	if err := c.ShouldBindJSON(&wf); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}
	if err := h.app.Storage.Workflows.Save(c.Request.Context(), &wf); err != nil {
		sendErr(c, err)
		return
	}
	sendResponse(c, http.StatusCreated, true, map[string]interface{}{"workflow": wf}, "")
}

func (h *handlers) getWorkflow(c *gin.Context) {
	wf, err := h.app.Storage.Workflows.Get(c.Request.Context(), model.ID(c.Param("id")))
	if err != nil {
		sendErr(c, err)
		return
	}
	sendSuccess(c, map[string]interface{}{"workflow": wf})
}

// updateWorkflow replaces a stored graph. An open editor session for it is
// discarded.
func (h *handlers) updateWorkflow(c *gin.Context) {
	ctx := c.Request.Context()
	id := model.ID(c.Param("id"))
	if _, err := h.app.Storage.Workflows.Get(ctx, id); err != nil {
		sendErr(c, err)
		return
	}
	var wf model.Workflow
	if err := c.ShouldBindJSON(&wf); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}
	wf.ID = id
	if err := h.app.Storage.Workflows.Save(ctx, &wf); err != nil {
		sendErr(c, err)
		return
	}
	_ = h.app.Sessions.Close(id)
	sendSuccess(c, map[string]interface{}{"workflow": wf})
}

func (h *handlers) deleteWorkflow(c *gin.Context) {
	id := model.ID(c.Param("id"))
	if err := h.app.Storage.Workflows.Delete(c.Request.Context(), id); err != nil {
		sendErr(c, err)
		return
	}
	_ = h.app.Sessions.Close(id)
	sendSuccess(c, map[string]interface{}{"deleted": id})
}

// runWorkflow runs the session graph of a stored workflow, including
// unsaved edits.
func (h *handlers) runWorkflow(c *gin.Context) {
	var req runRequest
	if err := bindOptional(c, &req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}
	s, err := h.app.Sessions.Open(c.Request.Context(), model.ID(c.Param("id")))
	if err != nil {
		sendErr(c, err)
		return
	}
	rec, err := s.Run(c.Request.Context(), req.Inputs)
	if err != nil {
		sendErr(c, err)
		return
	}
	sendSuccess(c, map[string]interface{}{"run": rec})
}

func (h *handlers) runAdHoc(c *gin.Context) {
	var req adHocRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}
	rec, err := h.app.Engine.Run(c.Request.Context(), req.Workflow, req.Inputs)
	if err != nil {
		sendErr(c, err)
		return
	}
	sendSuccess(c, map[string]interface{}{"run": rec})
}

// n8n

func (h *handlers) importN8n(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		sendError(c, http.StatusBadRequest, err.Error())
		return
	}
	wf, _, err := n8n.Parse(body)
	if err != nil {
		sendError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.app.Storage.Workflows.Save(c.Request.Context(), &wf); err != nil {
		sendErr(c, err)
		return
	}
	h.logger.Info("n8n workflow imported", zap.String("workflow_id", string(wf.ID)), zap.Int("nodes", len(wf.Nodes)))
	sendResponse(c, http.StatusCreated, true, map[string]interface{}{"workflow": wf}, "")
}

func (h *handlers) runN8n(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		sendError(c, http.StatusBadRequest, err.Error())
		return
	}
	wf, inputs, err := n8n.Parse(body)
	if err != nil {
		sendError(c, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := h.app.Engine.Run(c.Request.Context(), wf, inputs)
	if err != nil {
		sendErr(c, err)
		return
	}
	sendSuccess(c, map[string]interface{}{"run": rec})
}

// Run log

func (h *handlers) listRuns(c *gin.Context) {
	runs, err := h.app.Storage.Runs.List(c.Request.Context())
	if err != nil {
		sendErr(c, err)
		return
	}
	sendSuccess(c, map[string]interface{}{"runs": runs})
}

func (h *handlers) getRun(c *gin.Context) {
	rec, err := h.app.Storage.Runs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		sendErr(c, err)
		return
	}
	sendSuccess(c, map[string]interface{}{"run": rec})
}

func (h *handlers) deleteRun(c *gin.Context) {
	if err := h.app.Storage.Runs.Delete(c.Request.Context(), c.Param("id")); err != nil {
		sendErr(c, err)
		return
	}
	sendSuccess(c, map[string]interface{}{"deleted": c.Param("id")})
}

func (h *handlers) clearRuns(c *gin.Context) {
	if err := h.app.Storage.Runs.Clear(c.Request.Context()); err != nil {
		sendErr(c, err)
		return
	}
	sendSuccess(c, nil)
}

// Editor sessions

func (h *handlers) openSession(c *gin.Context) (*session.Session, bool) {
	s, err := h.app.Sessions.Open(c.Request.Context(), model.ID(c.Param("id")))
	if err != nil {
		sendErr(c, err)
		return nil, false
	}
	return s, true
}

func sessionView(s *session.Session) map[string]interface{} {
	return map[string]interface{}{
		"workflow": s.Workflow(),
		"status":   s.Status(),
		"canUndo":  s.CanUndo(),
		"canRedo":  s.CanRedo(),
		"running":  s.Running(),
	}
}

// applyEdit runs one session edit and answers with the new session view.
func (h *handlers) applyEdit(c *gin.Context, edit func(s *session.Session) error) {
	s, ok := h.openSession(c)
	if !ok {
		return
	}
	if err := edit(s); err != nil {
		sendError(c, http.StatusBadRequest, err.Error())
		return
	}
	sendSuccess(c, sessionView(s))
}

func (h *handlers) getSession(c *gin.Context) {
	if s, ok := h.openSession(c); ok {
		sendSuccess(c, sessionView(s))
	}
}

func (h *handlers) addNode(c *gin.Context) {
	var n model.Node
	if err := c.ShouldBindJSON(&n); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}
	h.applyEdit(c, func(s *session.Session) error { return s.AddNode(n) })
}

func (h *handlers) updateNode(c *gin.Context) {
	var n model.Node
	if err := c.ShouldBindJSON(&n); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}
	n.ID = model.ID(c.Param("nodeId"))
	h.applyEdit(c, func(s *session.Session) error { return s.UpdateNode(n) })
}

func (h *handlers) removeNode(c *gin.Context) {
	h.applyEdit(c, func(s *session.Session) error { return s.RemoveNode(model.ID(c.Param("nodeId"))) })
}

func (h *handlers) connect(c *gin.Context) {
	var e model.Edge
	if err := c.ShouldBindJSON(&e); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}
	h.applyEdit(c, func(s *session.Session) error {
		_, err := s.Connect(e)
		return err
	})
}

func (h *handlers) disconnect(c *gin.Context) {
	h.applyEdit(c, func(s *session.Session) error { return s.Disconnect(c.Param("edgeId")) })
}

func (h *handlers) undo(c *gin.Context) {
	h.applyEdit(c, func(s *session.Session) error {
		if !s.Undo() {
			return errors.New("nothing to undo")
		}
		return nil
	})
}

func (h *handlers) redo(c *gin.Context) {
	h.applyEdit(c, func(s *session.Session) error {
		if !s.Redo() {
			return errors.New("nothing to redo")
		}
		return nil
	})
}

func (h *handlers) saveSession(c *gin.Context) {
	s, ok := h.openSession(c)
	if !ok {
		return
	}
	if err := h.app.Sessions.Save(c.Request.Context(), s.ID()); err != nil {
		sendErr(c, err)
		return
	}
	sendSuccess(c, sessionView(s))
}
