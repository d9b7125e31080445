package entity

import "time"

// Keys of ConversationTurn.Meta.
const (
	MetaIntent    = "intent"
	MetaRoute     = "route"
	MetaMessageID = "message_id"
)

type ConversationTurn struct {
	User      string            `json:"user"`
	Bot       string            `json:"bot"`
	Timestamp time.Time         `json:"timestamp"`
	Meta      map[string]string `json:"meta,omitempty"`
}

type InboundMessage struct {
	UserID     string    `json:"user_id"`
	MessageID  string    `json:"message_id"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// Route records which composition tier produced a reply.
type Route string

const (
	RouteGreeting    Route = "greeting"
	RouteFollowUp    Route = "follow_up"
	RouteMerged      Route = "merged"
	RouteIndependent Route = "independent"
	RouteFallback    Route = "fallback"
	RouteApology     Route = "apology"
	RouteErasure     Route = "erasure"
)

type Reply struct {
	Text    string           `json:"text"`
	Intent  Intent           `json:"intent"`
	Route   Route            `json:"route"`
	Matches []RetrievalMatch `json:"matches,omitempty"`
}

type SendResult struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}
