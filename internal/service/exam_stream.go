package service

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"online_exam_backend/internal/model"
	"online_exam_backend/pkg/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// 推送与上行消息类型
const (
	StreamState    = "STATE"
	StreamResult   = "RESULT"
	StreamError    = "ERROR"
	StreamAnswer   = "ANSWER"
	StreamNavigate = "NAVIGATE"
	StreamComplete = "COMPLETE"
)

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type StreamMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type outgoing struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// StateFrame 推送给前端的状态帧
type StateFrame struct {
	State     model.ExamState `json:"state"`
	Remaining string          `json:"remaining"`
	Progress  Progress        `json:"progress"`
}

type ResultFrame struct {
	Result    model.ExamResult `json:"result"`
	Persisted bool             `json:"persisted"`
}

type answerMessage struct {
	QuestionID string            `json:"questionId"`
	UserAnswer model.AnswerValue `json:"userAnswer"`
}

type navigateMessage struct {
	Index int `json:"index"`
}

// examStream 单个考试会话的 WebSocket 连接
type examStream struct {
	session *ExamSession
	conn    *websocket.Conn
	limiter *rate.Limiter
	replies chan outgoing
	quit    chan struct{}
}

// ServeExamStream 升级连接并推送考试状态，客户端也可通过同一连接作答
func ServeExamStream(w http.ResponseWriter, r *http.Request, session *ExamSession) error {
	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	s := &examStream{
		session: session,
		conn:    conn,
		limiter: rate.NewLimiter(rate.Limit(20), 40),
		replies: make(chan outgoing, 8),
		quit:    make(chan struct{}),
	}
	states, unsubscribe := session.Subscribe()

	go s.writePump(states)
	go s.readPump(unsubscribe)
	return nil
}

func (s *examStream) reply(msg outgoing) {
	select {
	case s.replies <- msg:
	default:
	}
}

func (s *examStream) readPump(unsubscribe func()) {
	defer func() {
		close(s.quit)
		unsubscribe()
		s.conn.Close()
	}()
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error { s.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Warn("exam stream unexpected close", zap.String("sessionID", s.session.ID), zap.Error(err))
			}
			return
		}
		if !s.limiter.Allow() {
			continue
		}

		var msg StreamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.reply(outgoing{Type: StreamError, Data: errorPayload("invalid message")})
			continue
		}
		if err := s.handle(msg); err != nil {
			s.reply(outgoing{Type: StreamError, Data: errorPayload(err.Error())})
		}
	}
}

func (s *examStream) handle(msg StreamMessage) error {
	switch msg.Type {
	case StreamAnswer:
		var m answerMessage
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			return err
		}
		_, err := s.session.SubmitAnswer(m.QuestionID, m.UserAnswer)
		return err
	case StreamNavigate:
		var m navigateMessage
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			return err
		}
		return s.session.Navigate(m.Index)
	case StreamComplete:
		_, err := s.session.Complete()
		return err
	}
	return errors.New("unknown message type: " + msg.Type)
}

func (s *examStream) writePump(states <-chan model.ExamState) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case state, ok := <-states:
			if !ok {
				s.finish()
				return
			}
			frame := StateFrame{
				State:     RedactState(state),
				Remaining: FormatDuration(state.TimeRemainingMs),
				Progress:  s.session.Progress(),
			}
			if err := s.write(outgoing{Type: StreamState, Data: frame}); err != nil {
				return
			}
		case msg := <-s.replies:
			if err := s.write(msg); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.quit:
			return
		}
	}
}

// finish 订阅结束：考试已完成则推送成绩，然后关闭连接
func (s *examStream) finish() {
	if result, ok := s.session.Result(); ok {
		persisted, _ := s.session.Persistence()
		_ = s.write(outgoing{Type: StreamResult, Data: ResultFrame{Result: result, Persisted: persisted}})
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "exam finished"))
}

func (s *examStream) write(msg outgoing) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(msg)
}

func errorPayload(message string) map[string]string {
	return map[string]string{"message": message}
}

// RedactState 考试进行中隐藏作答对错，返回新的 Answers，不修改入参
func RedactState(state model.ExamState) model.ExamState {
	if state.Status != model.ExamInProgress {
		return state
	}
	answers := make(map[string]model.Answer, len(state.Answers))
	for id, a := range state.Answers {
		a.IsCorrect = false
		answers[id] = a
	}
	state.Answers = answers
	return state
}
