package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"qr_attendance_backend/models"
	"qr_attendance_backend/qrpayload"
	"qr_attendance_backend/sessions"
	"qr_attendance_backend/verification"
	"qr_attendance_backend/vision"
)

type CheckinOptions struct {
	VerifyTimeout time.Duration
	ResultDisplay time.Duration
}

type CheckinHandler struct {
	registry *sessions.Registry
	deps     verification.Deps
	opts     CheckinOptions
	upgrader websocket.Upgrader
}

func NewCheckinHandler(registry *sessions.Registry, deps verification.Deps, opts CheckinOptions, upgrader websocket.Upgrader) *CheckinHandler {
	return &CheckinHandler{registry: registry, deps: deps, opts: opts, upgrader: upgrader}
}

type validateRequest struct {
	Payload string `json:"payload" binding:"required"`
}

// ValidatePayload decodes a scanned payload and reports whether its session
// is accepting check-ins.
func (h *CheckinHandler) ValidatePayload(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := qrpayload.Decode(req.Payload)
	if err != nil {
		respondError(c, err)
		return
	}
	session, err := h.registry.GetSession(c.Request.Context(), p.SessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":        session.SubjectCode == p.SubjectCode,
		"session_id":   session.ID,
		"subject_code": session.SubjectCode,
		"active":       session.Active(),
	})
}

type checkinMessage struct {
	Type  string `json:"type"`
	Image string `json:"image,omitempty"`
}

type commandReply struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Error   string `json:"error"`
}

// CheckIn runs one verification machine for the authenticated student over a
// WebSocket. Text messages carry commands ("start", "abort", "capture" with a
// base64 image); binary messages are camera frames for the QR scanner. Every
// status change is pushed back as JSON.
func (h *CheckinHandler) CheckIn(c *gin.Context) {
	studentID := c.GetString("userID")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade to WebSocket: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(2 * vision.MaxFrameBytes)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	outbox := make(chan interface{}, 64)
	machine, err := verification.NewMachine(h.deps, verification.Options{
		StudentID:     studentID,
		VerifyTimeout: h.opts.VerifyTimeout,
		ResultDisplay: h.opts.ResultDisplay,
		Observer:      statusObserver(ctx, outbox, studentID),
	})
	if err != nil {
		log.Printf("Error creating check-in machine: %v", err)
		conn.WriteJSON(gin.H{"error": "Check-in unavailable"})
		return
	}
	go machine.Run(ctx)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(ctx, conn, outbox)
		cancel()
		// unblocks the read loop when the write side fails first
		conn.Close()
	}()

	keepAlive(conn)

	reply := func(command string, err error) {
		select {
		case outbox <- commandReply{Type: "error", Command: command, Error: err.Error()}:
		default:
		}
	}

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Check-in connection for student %s closed: %v", studentID, err)
			}
			break
		}
		if ctx.Err() != nil {
			break
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		switch mt {
		case websocket.BinaryMessage:
			if machine.Status().Phase != verification.PhaseScanningQR {
				continue
			}
			if img, err := vision.DecodeFrame(data); err == nil {
				machine.SubmitFrame(img)
			}
		case websocket.TextMessage:
			var msg checkinMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				reply("", errors.New("malformed message"))
				continue
			}
			switch msg.Type {
			case "start":
				if err := machine.Start(); err != nil {
					reply(msg.Type, err)
				}
			case "abort":
				machine.Abort()
			case "capture":
				raw, err := base64.StdEncoding.DecodeString(msg.Image)
				if err != nil {
					reply(msg.Type, errors.New("image must be base64"))
					continue
				}
				img, err := vision.DecodeFrame(raw)
				if err != nil {
					reply(msg.Type, models.ErrCaptureFailed)
					continue
				}
				if err := machine.SubmitCapture(img); err != nil {
					reply(msg.Type, err)
				}
			default:
				reply(msg.Type, errors.New("unknown message type"))
			}
		}
	}

	cancel()
	<-machine.Done()
	<-writerDone
}

// statusObserver queues machine statuses for the writer. Progress statuses are
// dropped when the client falls behind; Success and Failed wait for room until
// the connection ends.
func statusObserver(ctx context.Context, outbox chan<- interface{}, studentID string) func(verification.Status) {
	return func(s verification.Status) {
		switch s.Phase {
		case verification.PhaseSuccess, verification.PhaseFailed:
			select {
			case outbox <- s:
			case <-ctx.Done():
			}
		default:
			select {
			case outbox <- s:
			default:
				log.Printf("Dropping status %s for student %s: client too slow", s.Phase, studentID)
			}
		}
	}
}

func (h *CheckinHandler) writeLoop(ctx context.Context, conn *websocket.Conn, outbox <-chan interface{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case msg := <-outbox:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("Check-in write failed: %v", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
