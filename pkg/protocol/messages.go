package protocol

import "github.com/etamarw/roster/pkg/model"

// ResultCode tags every response with the outcome of the requested operation.
type ResultCode string

const (
	ResultOK                ResultCode = "OK"
	ResultNotFound          ResultCode = "NOT_FOUND"
	ResultInvalidCredential ResultCode = "INVALID_CREDENTIAL"
	ResultInvalidInput      ResultCode = "INVALID_INPUT"
)

// Message wraps all control plane messages.
type Message struct {
	// Only one of these fields should be set.
	LoginRequest        *LoginRequest        `json:"login_request,omitempty"`
	LogoutRequest       *LogoutRequest       `json:"logout_request,omitempty"`
	FetchUserRequest    *FetchUserRequest    `json:"fetch_user_request,omitempty"`
	UpdateUserRequest   *UpdateUserRequest   `json:"update_user_request,omitempty"`
	RegisterRequest     *RegisterRequest     `json:"register_request,omitempty"`
	RegistrationListReq *RegistrationListReq `json:"registration_list_request,omitempty"`
	AcceptRegistration  *AcceptRegistration  `json:"accept_registration_request,omitempty"`
	RosterRequest       *RosterRequest       `json:"roster_request,omitempty"`
	Response            *Response            `json:"response,omitempty"`
	ForcedLogout        *ForcedLogout        `json:"forced_logout,omitempty"`
	Ping                *Ping                `json:"ping,omitempty"`
	Pong                *Pong                `json:"pong,omitempty"`
}

// ----- Requests -----

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LogoutRequest struct{}

type FetchUserRequest struct {
	By       model.FetchBy `json:"by"`
	Argument string        `json:"argument"`
}

type UpdateUserRequest struct {
	User model.User `json:"user"`
}

// RegisterRequest files a pending registration for later manager approval.
type RegisterRequest struct {
	Registration model.Registration `json:"registration"`
}

type RegistrationListReq struct {
	Area string `json:"area"`
}

type AcceptRegistration struct {
	Username string `json:"username"`
}

type RosterRequest struct{}

// ----- Responses -----

// Response carries the result of any request plus an optional payload,
// mirroring the single tagged-response shape of the request surface.
type Response struct {
	Code          ResultCode               `json:"code"`
	Message       string                   `json:"message,omitempty"`
	User          *model.User              `json:"user,omitempty"`
	Users         []model.User             `json:"users,omitempty"`
	Registrations []model.Registration     `json:"registrations,omitempty"`
	Roster        []model.ConnectedClient  `json:"roster,omitempty"`
}

// ForcedLogout tells a client its session has been terminated server-side.
// It is pushed, never requested, and always carries a reason.
type ForcedLogout struct {
	Username string `json:"username"`
	Reason   string `json:"reason"`
}

// ----- Keepalive -----

type Ping struct {
	Timestamp int64 `json:"timestamp"`
}

type Pong struct {
	Timestamp int64 `json:"timestamp"`
}
