package message

import "testing"

func TestParseClient_Input(t *testing.T) {
	raw := []byte(`{"type":"input","sessionId":"s1","data":"ls\n"}`)
	msg, err := ParseClient(raw)
	if err != nil {
		t.Fatalf("ParseClient() error = %v", err)
	}
	if msg.Type != TypeInput || msg.SessionID != "s1" || msg.Data != "ls\n" {
		t.Fatalf("ParseClient() = %+v", msg)
	}
}

func TestParseClient_Resize(t *testing.T) {
	raw := []byte(`{"type":"resize","sessionId":"s1","cols":80,"rows":24}`)
	msg, err := ParseClient(raw)
	if err != nil {
		t.Fatalf("ParseClient() error = %v", err)
	}
	if msg.Cols != 80 || msg.Rows != 24 {
		t.Fatalf("ParseClient() = %+v", msg)
	}
}

func TestParseClient_MalformedJSON(t *testing.T) {
	if _, err := ParseClient([]byte(`{not json`)); err == nil {
		t.Fatalf("expected error for malformed json")
	}
}

func TestParseClient_MissingType(t *testing.T) {
	if _, err := ParseClient([]byte(`{"sessionId":"s1"}`)); err == nil {
		t.Fatalf("expected error for missing type")
	}
}

func TestOutput_RoundTrips(t *testing.T) {
	raw := Output("s1", []byte("hello"))
	msg, err := ParseClient(raw)
	if err != nil {
		t.Fatalf("ParseClient(Output()) error = %v", err)
	}
	if msg.Type != TypeOutput || msg.SessionID != "s1" {
		t.Fatalf("ParseClient(Output()) = %+v", msg)
	}
}
