package capture

import (
	"github.com/replaykit/replaykit/internal/artifact"
	"github.com/replaykit/replaykit/internal/canon"
)

// ModelCall is the structured input to RecordModelCall. Prompt is
// optional: when set, a prompt.render step is recorded ahead of the
// model.request/model.response pair.
type ModelCall struct {
	Prompt   canon.Value
	Input    canon.Value
	Output   canon.Value
	Metadata canon.Object
}

// ToolCall is the structured input to RecordToolCall.
type ToolCall struct {
	Input    canon.Value
	Output   canon.Value
	Metadata canon.Object
}

// HTTPCall is the structured input to RecordHTTPCall. Host drives host
// allow/deny-list enforcement; Input and Output are dropped entirely
// (replaced by null, not merely masked) when the active policy's
// CaptureHTTPBodies is false.
type HTTPCall struct {
	Host     string
	Input    canon.Value
	Output   canon.Value
	Metadata canon.Object
}

// recorded is the result of a successful (or policy-denied) boundary
// call: the steps appended, and — on denial — the boundary error.
type recorded struct {
	Steps []artifact.Step
	Err   error
}

// RecordModelCall enforces the model boundary, redacts, hashes, and
// appends the resulting step(s) (§4.5).
func (s *Scope) RecordModelCall(call ModelCall) (recorded, error) {
	if denyErr := checkBoundary(s.interception, BoundaryModel, ""); denyErr != nil {
		deniedStep, err := s.recordDenied(BoundaryModel, denyErr, summarizeModelCall(call))
		if err != nil {
			return recorded{}, err
		}
		return recorded{Steps: []artifact.Step{deniedStep}, Err: denyErr}, nil
	}

	var steps []artifact.Step
	metadata := s.redactMetadata(call.Metadata)

	if call.Prompt != nil {
		renderStep, err := s.appendStep(artifact.StepPromptRender, s.redaction.Redact(call.Prompt, ""), canon.Null{}, metadata)
		if err != nil {
			return recorded{}, err
		}
		steps = append(steps, renderStep)
	}

	reqStep, err := s.appendStep(artifact.StepModelRequest, s.redaction.Redact(call.Input, ""), canon.Null{}, metadata)
	if err != nil {
		return recorded{}, err
	}
	steps = append(steps, reqStep)

	respStep, err := s.appendStep(artifact.StepModelResponse, canon.Null{}, s.redaction.Redact(call.Output, ""), metadata)
	if err != nil {
		return recorded{}, err
	}
	steps = append(steps, respStep)

	return recorded{Steps: steps}, nil
}

// RecordToolCall enforces the tool boundary and appends tool.request /
// tool.response steps.
func (s *Scope) RecordToolCall(call ToolCall) (recorded, error) {
	if denyErr := checkBoundary(s.interception, BoundaryTool, ""); denyErr != nil {
		deniedStep, err := s.recordDenied(BoundaryTool, denyErr, summarizeToolCall(call))
		if err != nil {
			return recorded{}, err
		}
		return recorded{Steps: []artifact.Step{deniedStep}, Err: denyErr}, nil
	}

	metadata := s.redactMetadata(call.Metadata)

	reqStep, err := s.appendStep(artifact.StepToolRequest, s.redaction.Redact(call.Input, ""), canon.Null{}, metadata)
	if err != nil {
		return recorded{}, err
	}
	respStep, err := s.appendStep(artifact.StepToolResponse, canon.Null{}, s.redaction.Redact(call.Output, ""), metadata)
	if err != nil {
		return recorded{}, err
	}
	return recorded{Steps: []artifact.Step{reqStep, respStep}}, nil
}

// RecordHTTPCall enforces the http boundary (allow bit, then host
// allow/deny lists), strips the body entirely when body capture is
// disabled, and appends tool.request/tool.response steps tagged with
// boundary="http" — HTTP has no dedicated step type in §3's closed set,
// so it rides the same request/response shape as tool calls.
func (s *Scope) RecordHTTPCall(call HTTPCall) (recorded, error) {
	if denyErr := checkBoundary(s.interception, BoundaryHTTP, call.Host); denyErr != nil {
		deniedStep, err := s.recordDenied(BoundaryHTTP, denyErr, summarizeHTTPCall(call))
		if err != nil {
			return recorded{}, err
		}
		return recorded{Steps: []artifact.Step{deniedStep}, Err: denyErr}, nil
	}

	input := httpBody(call.Input, s.interception.CaptureHTTPBodies)
	output := httpBody(call.Output, s.interception.CaptureHTTPBodies)

	metadata := s.redactMetadata(call.Metadata)
	metadata["boundary"] = canon.String("http")
	metadata["host"] = canon.String(call.Host)

	reqStep, err := s.appendStep(artifact.StepToolRequest, s.redaction.Redact(input, ""), canon.Null{}, metadata)
	if err != nil {
		return recorded{}, err
	}
	respStep, err := s.appendStep(artifact.StepToolResponse, canon.Null{}, s.redaction.Redact(output, ""), metadata)
	if err != nil {
		return recorded{}, err
	}
	return recorded{Steps: []artifact.Step{reqStep, respStep}}, nil
}

func httpBody(v canon.Value, captureEnabled bool) canon.Value {
	if captureEnabled {
		return v
	}
	return canon.Null{}
}

// RecordError appends an error.event step directly — used for failures
// observed outside a policy-denied boundary (e.g. an upstream model or
// tool call that itself failed).
func (s *Scope) RecordError(input, output canon.Value, metadata canon.Object) (artifact.Step, error) {
	return s.appendStep(artifact.StepErrorEvent, s.redaction.Redact(input, ""), s.redaction.Redact(output, ""), s.redactMetadata(metadata))
}

// RecordFinalOutput appends the run's terminal output.final step.
func (s *Scope) RecordFinalOutput(output canon.Value, metadata canon.Object) (artifact.Step, error) {
	return s.appendStep(artifact.StepOutputFinal, canon.Null{}, s.redaction.Redact(output, ""), s.redactMetadata(metadata))
}

func (s *Scope) redactMetadata(metadata canon.Object) canon.Object {
	if metadata == nil {
		metadata = canon.Object{}
	}
	return s.redaction.Redact(metadata, "").(canon.Object)
}

func summarizeModelCall(call ModelCall) canon.Value {
	return canon.Object{"input": orNull(call.Input), "metadata": orEmptyObj(call.Metadata)}
}

func summarizeToolCall(call ToolCall) canon.Value {
	return canon.Object{"input": orNull(call.Input), "metadata": orEmptyObj(call.Metadata)}
}

func summarizeHTTPCall(call HTTPCall) canon.Value {
	return canon.Object{"host": canon.String(call.Host), "metadata": orEmptyObj(call.Metadata)}
}

func orEmptyObj(o canon.Object) canon.Value {
	if o == nil {
		return canon.Object{}
	}
	return o
}
