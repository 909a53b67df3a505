package dto

type Event struct {
	Event    EventDetails  `json:"event"`
	Metadata EventMetadata `json:"metadata"`
}

type EventDetails struct {
	Id         string      `json:"id"`
	UserId     string      `json:"userId"`
	EntityId   string      `json:"entityId"`
	EntityType string      `json:"entityType"`
	EventType  string      `json:"eventType"`
	Data       interface{} `json:"data"`
}

type EventMetadata struct {
	UberTraceId string `json:"uber-trace-id"`
	AppSource   string `json:"appSource"`
	RequestId   string `json:"requestId"`
	Timestamp   string `json:"timestamp"`
}

// PipelineCompleted is published after every pipeline run, successful or not.
type PipelineCompleted struct {
	ActivityID   string                 `json:"activityId"`
	UserID       string                 `json:"userId"`
	RequestID    string                 `json:"requestId"`
	MessageCount int                    `json:"messageCount"`
	State        string                 `json:"state"`
	Stats        map[string]interface{} `json:"stats"`
	Timestamp    string                 `json:"timestamp"`
}
