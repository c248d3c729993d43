package bus

import (
	"encoding/json"
	"fmt"
)

// Actions exchanged between the host, the panel and the background context.
const (
	ActionTogglePanel      = "togglePanel"
	ActionCheckPanel       = "checkPanel"
	ActionClosePanel       = "closePanel"
	ActionGetAPIURL        = "getApiUrl"
	ActionSendMessage      = "sendMessage"
	ActionUploadFile       = "uploadFile"
	ActionSelectModule     = "selectModule"
	ActionClearChat        = "clearChat"
	ActionDocumentsUpdated = "documentsUpdated"
	ActionBotMessage       = "botMessage"

	// Replies to checkPanel/togglePanel/closePanel and getApiUrl.
	ActionPanelState = "panelState"
	ActionAPIURL     = "apiUrl"
)

// Message is one structured action on the bus.
type Message struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// NewMessage builds a Message with data encoded as JSON.
func NewMessage(action string, data interface{}) (Message, error) {
	msg := Message{Action: action}
	if data == nil {
		return msg, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode %s data: %w", action, err)
	}
	msg.Data = raw
	return msg, nil
}

// Decode unmarshals the message data into dst.
func (m Message) Decode(dst interface{}) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%s: empty data", m.Action)
	}
	if err := json.Unmarshal(m.Data, dst); err != nil {
		return fmt.Errorf("failed to decode %s data: %w", m.Action, err)
	}
	return nil
}

// TextData is the payload of sendMessage and botMessage.
type TextData struct {
	Text string `json:"text"`
}

// FileData is the payload of uploadFile.
type FileData struct {
	Path string `json:"path"`
}

// ModuleData is the payload of selectModule.
type ModuleData struct {
	ModuleCode string `json:"module_code"`
}

// PanelState is the payload of panelState replies.
type PanelState struct {
	Open bool `json:"open"`
}

// APIURLData is the payload of apiUrl replies.
type APIURLData struct {
	APIURL string `json:"apiUrl"`
}
