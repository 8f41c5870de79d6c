package observerproto

import "testing"

func TestDecodeFocus(t *testing.T) {
	m, err := DecodeFocus([]byte(`{"type":"FOCUS","protocol_version":"1.0","pos":[10.5,-3,2],"forward":[1,0,0]}`))
	if err != nil {
		t.Fatalf("DecodeFocus: %v", err)
	}
	if m.Pos != [3]float64{10.5, -3, 2} || m.Forward[0] != 1 {
		t.Fatalf("decoded %+v", m)
	}
}

func TestFocusSchemaRejects(t *testing.T) {
	for name, raw := range map[string]string{
		"missing pos":   `{"type":"FOCUS","protocol_version":"1.0"}`,
		"short pos":     `{"type":"FOCUS","protocol_version":"1.0","pos":[1,2]}`,
		"string coord":  `{"type":"FOCUS","protocol_version":"1.0","pos":[1,"2",3]}`,
		"unknown field": `{"type":"FOCUS","protocol_version":"1.0","pos":[1,2,3],"speed":4}`,
		"wrong type":    `{"type":"SUBSCRIBE","protocol_version":"1.0","pos":[1,2,3]}`,
	} {
		if _, err := DecodeFocus([]byte(raw)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestSubscribeSchema(t *testing.T) {
	m, err := DecodeSubscribe([]byte(`{"type":"SUBSCRIBE","protocol_version":"1.0","stats_every_ms":500,"events":["LOADED","UNLOADED"]}`))
	if err != nil {
		t.Fatalf("DecodeSubscribe: %v", err)
	}
	if m.StatsEveryMs != 500 || len(m.Events) != 2 {
		t.Fatalf("decoded %+v", m)
	}
	if _, err := DecodeSubscribe([]byte(`{"type":"SUBSCRIBE","protocol_version":"1.0","events":["EXPLODED"]}`)); err == nil {
		t.Fatalf("expected error for unknown event kind")
	}
}

func TestErrorCodes(t *testing.T) {
	e := NewError(ErrProtoBadRequest, "nope")
	if e.Type != TypeError || !IsKnownCode(e.Code) || IsKnownCode("E_MADE_UP") {
		t.Fatalf("unexpected %+v", e)
	}
}
