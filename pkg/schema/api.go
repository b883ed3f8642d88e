// pkg/schema/api.go
package schema

// BulkUpdateRequest starts a bulk field update across every student record
// connected to the target.
type BulkUpdateRequest struct {
	TargetID   string `json:"targetId"`
	FieldName  string `json:"fieldName"`
	Value      any    `json:"value"`
	ToggleType string `json:"toggleType,omitempty"`
}

type BulkUpdateResponse struct {
	Success   bool   `json:"success"`
	JobID     string `json:"jobId"`
	Message   string `json:"message"`
	StatusURL string `json:"statusUrl"`
}

// JobStatusResponse is a job snapshot plus the derived time estimate. The
// estimate is computed fresh on every read and never stored.
type JobStatusResponse struct {
	Job
	EstimatedTimeRemaining string `json:"estimatedTimeRemaining,omitempty"`
}

// ConsentResponses holds the five yes/no answers from the consent form.
type ConsentResponses struct {
	ConfirmRead        bool `json:"confirm_read"`
	TimeToConsider     bool `json:"time_to_consider"`
	FreeToWithdraw     bool `json:"free_to_withdraw"`
	AgreeParticipate   bool `json:"agree_participate"`
	PermissionResearch bool `json:"permission_research"`
}

type ConsentRequest struct {
	Email           string            `json:"email"`
	ParticipantName string            `json:"participantName"`
	Date            string            `json:"date"`
	Responses       *ConsentResponses `json:"responses"`
	SignatureData   string            `json:"signatureData"`
}

type ConsentResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	Session     any    `json:"session,omitempty"`
	RedirectURL string `json:"redirectUrl"`
}

// ErrorResponse is the JSON body for every non-2xx answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
