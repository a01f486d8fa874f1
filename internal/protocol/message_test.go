package protocol

import "testing"

func TestMessageRoundTrip(t *testing.T) {
	msg, err := NewMessage(7, "updateControls", map[string]string{"sceneID": "default"}, true)
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}

	encoded, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if decoded.ID != msg.ID {
		t.Errorf("ID = %d, want %d", decoded.ID, msg.ID)
	}
	if decoded.Type != msg.Type {
		t.Errorf("Type = %s, want %s", decoded.Type, msg.Type)
	}
	if decoded.Method != msg.Method {
		t.Errorf("Method = %s, want %s", decoded.Method, msg.Method)
	}
	if string(decoded.Params) != string(msg.Params) {
		t.Errorf("Params = %s, want %s", decoded.Params, msg.Params)
	}
}

func TestDecodeReply(t *testing.T) {
	raw := []byte(`{"id":3,"type":"reply","result":{"time":1234}}`)
	frame, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if frame.Type != FrameReply {
		t.Fatalf("Type = %s, want %s", frame.Type, FrameReply)
	}
	if frame.ID != 3 {
		t.Fatalf("ID = %d, want 3", frame.ID)
	}
	if frame.Error != nil {
		t.Fatalf("Error = %+v, want nil", frame.Error)
	}
}

func TestDecodeReplyError(t *testing.T) {
	raw := []byte(`{"id":5,"type":"reply","error":{"code":4000,"message":"bad control","path":"controlID"}}`)
	frame, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if frame.Error == nil {
		t.Fatalf("Error = nil, want non-nil")
	}
	if frame.Error.Code != 4000 || frame.Error.Message != "bad control" {
		t.Fatalf("Error = %+v, unexpected", frame.Error)
	}
}

func TestIDGeneratorMonotonic(t *testing.T) {
	gen := &IDGenerator{}
	seen := make(map[uint32]bool)
	var prev uint32
	for i := 0; i < 100; i++ {
		id := gen.Next()
		if id == 0 {
			t.Fatalf("Next() returned reserved id 0")
		}
		if seen[id] {
			t.Fatalf("Next() returned duplicate id %d", id)
		}
		if i > 0 && id <= prev {
			t.Fatalf("Next() not monotonic: %d followed by %d", prev, id)
		}
		seen[id] = true
		prev = id
	}
}
