package eventsourcing

// Test event payloads spanning three schema versions of the same logical
// event, plus a deliberately cyclic pair for registry misconfiguration tests.

type noteAddedV1 struct {
	Text string `json:"text"`
}

func (*noteAddedV1) EventType() string { return "test.NoteAdded.v1" }
func (*noteAddedV1) EventKind() string { return "note.added" }

type noteAddedV2 struct {
	Text   string `json:"text"`
	Author string `json:"author"`
}

func (*noteAddedV2) EventType() string { return "test.NoteAdded.v2" }
func (*noteAddedV2) EventKind() string { return "note.added" }

type noteAddedV3 struct {
	Text     string `json:"text"`
	Author   string `json:"author"`
	Language string `json:"language"`
}

func (*noteAddedV3) EventType() string { return "test.NoteAdded.v3" }
func (*noteAddedV3) EventKind() string { return "note.added" }

func upcastNoteV1ToV2() Upcaster {
	return Upcaster{
		SourceType: "test.NoteAdded.v1",
		TargetType: "test.NoteAdded.v2",
		Transform: func(payload EventPayload) (EventPayload, error) {
			v1 := payload.(*noteAddedV1)
			return &noteAddedV2{Text: v1.Text, Author: "unknown"}, nil
		},
	}
}

func upcastNoteV2ToV3() Upcaster {
	return Upcaster{
		SourceType: "test.NoteAdded.v2",
		TargetType: "test.NoteAdded.v3",
		Transform: func(payload EventPayload) (EventPayload, error) {
			v2 := payload.(*noteAddedV2)
			return &noteAddedV3{Text: v2.Text, Author: v2.Author, Language: "en"}, nil
		},
	}
}

type cycleA struct{}

func (*cycleA) EventType() string { return "test.Cycle.a" }
func (*cycleA) EventKind() string { return "cycle" }

type cycleB struct{}

func (*cycleB) EventType() string { return "test.Cycle.b" }
func (*cycleB) EventKind() string { return "cycle" }
