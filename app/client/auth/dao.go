package auth

// State of the device-flow credential lifecycle.
type State int

const (
	StateIdle State = iota
	StateAwaitingDeviceCode
	StatePolling
	StateAuthenticated
	StateRefreshing
	StateLoggedOut
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingDeviceCode:
		return "awaiting_device_code"
	case StatePolling:
		return "polling"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	default:
		return "logged_out"
	}
}

// DeviceAuthSession holds one in-flight device-flow authorization. It is
// never persisted; it lives from device-code response until poll completion.
type DeviceAuthSession struct {
	DeviceCode      string
	UserCode        string
	VerificationURI string
	ExpiresIn       int
	PollInterval    int
}

// Callbacks deliver credential lifecycle events. OnTokenRefreshed is
// distinct from OnAuthenticationChanged so dependents can pick up a new
// bearer value without re-running their whole auth handling.
type Callbacks struct {
	OnAuthenticationChanged   func(authenticated bool)
	OnAuthenticationSucceeded func()
	OnAuthenticationFailed    func(reason string)
	OnTokenRefreshed          func()
	OnUserCode                func(userCode, verificationURI string)
	OnPollingChanged          func(polling bool)
	OnStatus                  func(message string)
}

type deviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Status       int    `json:"status"`
	Message      string `json:"message"`
}

type validateResponse struct {
	UserID   string `json:"user_id"`
	Login    string `json:"login"`
	ClientID string `json:"client_id"`
}
