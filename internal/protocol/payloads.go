package protocol

// UserCredentials is the user part of a login or logout request.
type UserCredentials struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// AuthRequest is the payload of login and logout.
type AuthRequest struct {
	User *UserCredentials `json:"user"`
}

// UserState is how a user is presented to clients.
type UserState struct {
	Login     string `json:"login"`
	IsLogined bool   `json:"isLogined"`
	IsActive  *bool  `json:"isActive,omitempty"`
}

// UserResult answers login, logout and the external presence pushes.
type UserResult struct {
	User UserState `json:"user"`
}

// PresenceResult answers set-active and set-inactive.
type PresenceResult struct {
	User  UserState   `json:"user"`
	Users []UserState `json:"users"`
}

// UserRef names a peer in a history query.
type UserRef struct {
	Login string `json:"login"`
}

// HistoryRequest is the payload of history-query.
type HistoryRequest struct {
	User *UserRef `json:"user"`
}

// Status mirrors a stored message's flags. Pointers let partial status
// objects (receipts, delete notices) omit the flags they do not speak for.
type Status struct {
	IsDelivered *bool `json:"isDelivered,omitempty"`
	IsReaded    *bool `json:"isReaded,omitempty"`
	IsEdited    *bool `json:"isEdited,omitempty"`
	IsDeleted   *bool `json:"isDeleted,omitempty"`
}

// MessageView is a message as sent on the wire. Partial views (receipts)
// only set ID and Status.
type MessageView struct {
	ID       string  `json:"id"`
	From     string  `json:"from,omitempty"`
	To       string  `json:"to,omitempty"`
	Text     string  `json:"text,omitempty"`
	Datetime int64   `json:"datetime,omitempty"`
	Status   *Status `json:"status,omitempty"`
}

// MessageResult wraps a single message view.
type MessageResult struct {
	Message MessageView `json:"message"`
}

// HistoryResult answers history-query.
type HistoryResult struct {
	Messages []MessageView `json:"messages"`
}

// MessageInput is the message part of send, edit, read and delete requests.
// ID is a pointer so a missing id can be told apart from an empty one.
type MessageInput struct {
	ID   *string `json:"id"`
	To   string  `json:"to"`
	Text string  `json:"text"`
}

// MessageRequest is the payload of every messaging request except
// history-query.
type MessageRequest struct {
	Message *MessageInput `json:"message"`
}

// Flag returns a pointer to b, for building Status values.
func Flag(b bool) *bool {
	return &b
}
