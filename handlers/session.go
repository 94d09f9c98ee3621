package handlers

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"qr_attendance_backend/models"
	"qr_attendance_backend/qrpayload"
	"qr_attendance_backend/sessions"
	"qr_attendance_backend/watcher"
)

type SessionHandler struct {
	registry *sessions.Registry
	upgrader websocket.Upgrader
}

func NewSessionHandler(registry *sessions.Registry, upgrader websocket.Upgrader) *SessionHandler {
	return &SessionHandler{registry: registry, upgrader: upgrader}
}

func sessionResponse(s models.Session) models.SessionResponse {
	return models.SessionResponse{
		Session: s,
		Active:  s.Active(),
		Payload: qrpayload.Encode(s.ID, s.SubjectCode),
	}
}

func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req models.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.registry.CreateSession(c.Request.Context(), c.GetString("userID"), req.SubjectCode)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sessionResponse(session))
}

func (h *SessionHandler) GetActiveSession(c *gin.Context) {
	session, ok, err := h.registry.FindActiveSession(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No active session"})
		return
	}
	c.JSON(http.StatusOK, sessionResponse(session))
}

func (h *SessionHandler) GetRecentSessions(c *gin.Context) {
	limit := sessions.DefaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
			return
		}
		limit = n
	}

	list, err := h.registry.RecentSessions(c.Request.Context(), c.GetString("userID"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]models.SessionResponse, len(list))
	for i, s := range list {
		out[i] = sessionResponse(s)
	}
	c.JSON(http.StatusOK, out)
}

func (h *SessionHandler) EndSession(c *gin.Context) {
	if _, ok := h.ownedSession(c); !ok {
		return
	}
	session, err := h.registry.EndSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse(session))
}

func (h *SessionHandler) GetSessionQR(c *gin.Context) {
	session, ok := h.ownedSession(c)
	if !ok {
		return
	}
	size := qrpayload.DefaultImageSize
	if raw := c.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 128 || n > 2048 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "size must be between 128 and 2048"})
			return
		}
		size = n
	}
	png, err := qrpayload.PNG(session.ID, session.SubjectCode, size)
	if err != nil {
		log.Printf("Error rendering QR for session %s: %v", session.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render QR code"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *SessionHandler) GetRecords(c *gin.Context) {
	session, ok := h.ownedSession(c)
	if !ok {
		return
	}
	records, err := h.registry.Records(c.Request.Context(), session.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.AttendanceListResponse{
		SessionID: session.ID,
		Count:     len(records),
		Records:   records,
	})
}

// StreamRecords pushes the full record list of a session over a WebSocket
// every time it changes.
func (h *SessionHandler) StreamRecords(c *gin.Context) {
	session, ok := h.ownedSession(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade to WebSocket: %v", err)
		return
	}
	defer conn.Close()

	w, err := watcher.Watch(h.registry, session.ID)
	if err != nil {
		conn.WriteJSON(gin.H{"error": "Failed to watch session", "reason": models.ReasonCode(err)})
		return
	}
	defer w.Close()

	// The read side only handles pongs and notices the client leaving.
	gone := make(chan struct{})
	keepAlive(conn)
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case records := <-w.Updates():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(models.AttendanceListResponse{
				SessionID: session.ID,
				Count:     len(records),
				Records:   records,
			}); err != nil {
				log.Printf("Record stream for session %s closed: %v", session.ID, err)
				return
			}
		case <-w.Failed():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteJSON(gin.H{"error": "Record feed failed", "reason": models.ReasonCode(w.Err())})
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

// ownedSession loads the :id session and checks that the caller owns it.
func (h *SessionHandler) ownedSession(c *gin.Context) (models.Session, bool) {
	session, err := h.registry.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return models.Session{}, false
	}
	if session.OwnerID != c.GetString("userID") {
		c.JSON(http.StatusForbidden, gin.H{"error": "Session belongs to another teacher"})
		return models.Session{}, false
	}
	return session, true
}
