package wire

import (
	"encoding/json"
	"testing"
)

func TestAnyMessage_ClassifiesKinds(t *testing.T) {
	var req AnyMessage
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"spool/listJobs","id":7}`), &req); err != nil {
		t.Fatalf("request rejected: %v", err)
	}
	if req.Type() != "request" || req.AsRequest() == nil || req.AsResponse() != nil {
		t.Fatalf("expected request classification, got %s", req.Type())
	}

	var note AnyMessage
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"document/start","params":{"sessionId":"s1"}}`), &note); err != nil {
		t.Fatalf("notification rejected: %v", err)
	}
	if note.Type() != "notification" {
		t.Fatalf("expected notification, got %s", note.Type())
	}

	var resp AnyMessage
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","result":{},"id":"a"}`), &resp); err != nil {
		t.Fatalf("response rejected: %v", err)
	}
	if resp.Type() != "response" || resp.AsResponse() == nil || resp.AsRequest() != nil {
		t.Fatalf("expected response classification, got %s", resp.Type())
	}
}

func TestAnyMessage_RejectsMalformed(t *testing.T) {
	cases := []string{
		`{"jsonrpc":"1.0","method":"x"}`,
		`{"jsonrpc":"2.0","method":"x","result":{}}`,
		`{"jsonrpc":"2.0","result":{},"error":{"code":1,"message":"m"},"id":1}`,
		`{"jsonrpc":"2.0","id":1}`,
	}
	for _, raw := range cases {
		var m AnyMessage
		if err := json.Unmarshal([]byte(raw), &m); err == nil {
			t.Fatalf("malformed message accepted: %s", raw)
		}
	}
}

func TestRequestID_RoundTrip(t *testing.T) {
	var id RequestID
	if err := json.Unmarshal([]byte(`42`), &id); err != nil {
		t.Fatalf("int id rejected: %v", err)
	}
	if id.String() != "42" {
		t.Fatalf("expected 42, got %q", id.String())
	}
	out, err := id.MarshalJSON()
	if err != nil || string(out) != "42" {
		t.Fatalf("int id marshal: %s, %v", out, err)
	}

	if err := json.Unmarshal([]byte(`"req-1"`), &id); err != nil {
		t.Fatalf("string id rejected: %v", err)
	}
	if id.String() != "req-1" {
		t.Fatalf("expected req-1, got %q", id.String())
	}

	if err := json.Unmarshal([]byte(`1.5`), &id); err == nil {
		t.Fatal("fractional id accepted")
	}
	if err := json.Unmarshal([]byte(`true`), &id); err == nil {
		t.Fatal("bool id accepted")
	}
}

func TestNewRequest_MarshalsParams(t *testing.T) {
	req, err := NewRequest(NewIntID(1), MethodCancelJob, JobParams{JobID: "j1"})
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	var got JobParams
	if err := req.UnmarshalParams(&got); err != nil {
		t.Fatalf("UnmarshalParams: %v", err)
	}
	if got.JobID != "j1" {
		t.Fatalf("expected j1, got %q", got.JobID)
	}

	note, err := NewNotification(MethodDocumentFinish, DocumentFinishParams{SessionID: "s"})
	if err != nil {
		t.Fatalf("NewNotification: %v", err)
	}
	if !note.ID.IsNil() {
		t.Fatal("notification must carry a nil id")
	}
}
