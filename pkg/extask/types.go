package extask

import "encoding/json"

// Topics served by the built-in relays.
const (
	TopicHTTPRequest = "http-request-topic"
	TopicSaveDB      = "save-db-topic"
	TopicSendEmail   = "send-email-topic"
)

// Variable is the engine's tagged value: {"value": ..., "type": "String"}.
// Value is kept raw so that decoding never fails on unexpected shapes.
type Variable struct {
	Value     json.RawMessage `json:"value,omitempty"`
	Type      string          `json:"type,omitempty"`
	ValueInfo json.RawMessage `json:"valueInfo,omitempty"`
}

type Variables map[string]*Variable

// Task is an external task locked to this worker by fetchAndLock.
type Task struct {
	ID                  string    `json:"id"`
	TopicName           string    `json:"topicName"`
	WorkerID            string    `json:"workerId,omitempty"`
	ProcessInstanceID   string    `json:"processInstanceId,omitempty"`
	ProcessDefinitionID string    `json:"processDefinitionId,omitempty"`
	ActivityID          string    `json:"activityId,omitempty"`
	BusinessKey         string    `json:"businessKey,omitempty"`
	Retries             *int      `json:"retries,omitempty"`
	Priority            int64     `json:"priority,omitempty"`
	Variables           Variables `json:"variables,omitempty"`
}

// StringVariable builds a Variable holding a string value. It is mostly
// useful in tests and when echoing variables back to the engine.
func StringVariable(v string) *Variable {
	raw, _ := json.Marshal(v)
	return &Variable{Value: raw, Type: "String"}
}
