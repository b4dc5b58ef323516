package control

import (
	"errors"
	"fmt"
	"time"

	"github.com/SanjoDeundiak/peer-runner/pkg/lib"
	"google.golang.org/protobuf/types/known/structpb"
)

// Snapshot is the decoded answer of the State method.
type Snapshot struct {
	RunID string
	Peers []lib.PeerStatus
}

func encodeState(runID string, peers []lib.PeerStatus) (*structpb.Struct, error) {
	list := make([]any, 0, len(peers))
	for _, p := range peers {
		entry := map[string]any{
			"peer":   p.PeerID,
			"pid":    p.Pid,
			"anchor": p.Anchor,
			"port":   p.Port,
			"start":  p.StartTime.Format(time.RFC3339Nano),
		}
		if p.ExitCode != nil {
			entry["exitCode"] = *p.ExitCode
		}
		if p.EndTime != nil {
			entry["end"] = p.EndTime.Format(time.RFC3339Nano)
		}
		list = append(list, entry)
	}
	return structpb.NewStruct(map[string]any{
		"run":   runID,
		"peers": list,
	})
}

func decodeState(s *structpb.Struct) (*Snapshot, error) {
	fields := s.GetFields()
	snap := &Snapshot{RunID: fields["run"].GetStringValue()}
	for _, v := range fields["peers"].GetListValue().GetValues() {
		entry := v.GetStructValue().GetFields()
		if entry == nil {
			return nil, errors.New("malformed peer entry")
		}
		start, err := time.Parse(time.RFC3339Nano, entry["start"].GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("malformed start time: %w", err)
		}
		p := lib.PeerStatus{
			PeerID:    int(entry["peer"].GetNumberValue()),
			Pid:       int(entry["pid"].GetNumberValue()),
			Anchor:    entry["anchor"].GetBoolValue(),
			Port:      int(entry["port"].GetNumberValue()),
			StartTime: start,
		}
		if v, ok := entry["exitCode"]; ok {
			code := int(v.GetNumberValue())
			p.ExitCode = &code
		}
		if v, ok := entry["end"]; ok {
			end, err := time.Parse(time.RFC3339Nano, v.GetStringValue())
			if err != nil {
				return nil, fmt.Errorf("malformed end time: %w", err)
			}
			p.EndTime = &end
		}
		snap.Peers = append(snap.Peers, p)
	}
	return snap, nil
}

func encodeLine(line lib.ConsoleLine) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"peer":   line.PeerID,
		"stream": line.Stream.String(),
		"text":   line.Text,
	})
}

func decodeLine(s *structpb.Struct) lib.ConsoleLine {
	fields := s.GetFields()
	line := lib.ConsoleLine{
		PeerID: int(fields["peer"].GetNumberValue()),
		Text:   fields["text"].GetStringValue(),
	}
	if fields["stream"].GetStringValue() == lib.StreamStderr.String() {
		line.Stream = lib.StreamStderr
	}
	return line
}
