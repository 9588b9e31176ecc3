package events

// FunctionCallResponse answers a FunctionCallRequest. Output is the handler
// result serialized as a JSON string, correlated by FunctionCallID.
type FunctionCallResponse struct {
	Type           string `json:"type"`
	FunctionCallID string `json:"function_call_id"`
	Output         string `json:"output"`
}

func (FunctionCallResponse) Kind() string { return TypeFunctionCallResponse }

func NewFunctionCallResponse(functionCallID, output string) FunctionCallResponse {
	return FunctionCallResponse{
		Type:           TypeFunctionCallResponse,
		FunctionCallID: functionCallID,
		Output:         output,
	}
}

// UpdateInstructions replaces the agent's system instructions mid-session.
type UpdateInstructions struct {
	Type         string `json:"type"`
	Instructions string `json:"instructions"`
}

func (UpdateInstructions) Kind() string { return TypeUpdateInstructions }

func NewUpdateInstructions(instructions string) UpdateInstructions {
	return UpdateInstructions{Type: TypeUpdateInstructions, Instructions: instructions}
}

// UpdateSpeak switches the agent's speech synthesis model mid-session.
type UpdateSpeak struct {
	Type  string `json:"type"`
	Model string `json:"model"`
}

func (UpdateSpeak) Kind() string { return TypeUpdateSpeak }

func NewUpdateSpeak(model string) UpdateSpeak {
	return UpdateSpeak{Type: TypeUpdateSpeak, Model: model}
}

// InjectAgentMessage makes the agent speak the given message immediately,
// outside its normal turn.
type InjectAgentMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (InjectAgentMessage) Kind() string { return TypeInjectAgentMessage }

func NewInjectAgentMessage(message string) InjectAgentMessage {
	return InjectAgentMessage{Type: TypeInjectAgentMessage, Message: message}
}

// KeepAlive is the periodic liveness frame.
type KeepAlive struct {
	Type string `json:"type"`
}

func (KeepAlive) Kind() string { return TypeKeepAlive }

func NewKeepAlive() KeepAlive {
	return KeepAlive{Type: TypeKeepAlive}
}
