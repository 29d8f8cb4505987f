package grpc

import (
	"context"
	"log/slog"
	"time"

	"github.com/emmett/chime/internal/detect"
	"github.com/emmett/chime/internal/events"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name
const ServiceName = "chime.v1.Detector"

const (
	statusMethod = "/" + ServiceName + "/Status"
	watchMethod  = "/" + ServiceName + "/Watch"
)

// DetectorServer is the server API of chime.v1.Detector.
//
// Messages are protobuf well-known types, so no generated code is needed:
// Status returns a Struct snapshot and Watch takes a Struct request with an
// optional "kinds" list and streams one Struct per event.
type DetectorServer interface {
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Watch(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
}

// RegisterDetectorServer registers srv with s
func RegisterDetectorServer(s grpc.ServiceRegistrar, srv DetectorServer) {
	s.RegisterService(&detectorServiceDesc, srv)
}

var detectorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DetectorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Status", Handler: statusHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: watchHandler, ServerStreams: true},
	},
	Metadata: "chime/v1/detector.proto",
}

func statusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DetectorServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: statusMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DetectorServer).Status(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(DetectorServer).Watch(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

type detectorService struct {
	det    Detector
	buffer int
	logger *slog.Logger
}

func newDetectorService(det Detector, buffer int, logger *slog.Logger) *detectorService {
	return &detectorService{det: det, buffer: buffer, logger: logger}
}

func (d *detectorService) Status(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return StatusStruct(d.det.PatternName(), d.det.Status())
}

func (d *detectorService) Watch(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	wanted := make(map[events.Kind]bool)
	if kinds, ok := req.GetFields()["kinds"]; ok {
		for _, v := range kinds.GetListValue().GetValues() {
			wanted[events.Kind(v.GetStringValue())] = true
		}
	}

	ch, unsubscribe := d.det.Subscribe(d.buffer)
	defer unsubscribe()

	d.logger.Debug("watch stream opened", "kinds", len(wanted))
	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			if len(wanted) > 0 && !wanted[e.Kind] {
				continue
			}
			msg, err := EventStruct(e)
			if err != nil {
				return err
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

// StatusStruct converts a pipeline status to a protobuf Struct
func StatusStruct(pattern string, s detect.Status) (*structpb.Struct, error) {
	scores := make([]any, len(s.Scores))
	for i, v := range s.Scores {
		scores[i] = v
	}

	fields := map[string]any{
		"pattern":            pattern,
		"windows_processed":  s.WindowsProcessed,
		"windows_dropped":    s.WindowsDropped,
		"batches_rejected":   s.BatchesRejected,
		"matches":            s.Matches,
		"over_budget":        s.OverBudget,
		"threshold":          s.Threshold,
		"last_matched":       s.LastMatched,
		"last_feature":       s.LastFeature,
		"last_label":         s.LastLabel,
		"scores":             scores,
		"history_len":        s.HistoryLen,
		"history_cap":        s.HistoryCap,
		"average_compute_ms": durationMillis(s.AverageCompute),
		"budget_ms":          durationMillis(s.Budget),
	}
	if s.HasScore {
		fields["last_score"] = s.LastScore
	}
	if s.HasBest {
		fields["best_score"] = s.BestScore
	}
	return structpb.NewStruct(fields)
}

// EventStruct converts a detector event to a protobuf Struct
func EventStruct(e events.Event) (*structpb.Struct, error) {
	fields := map[string]any{
		"id":        e.ID,
		"kind":      string(e.Kind),
		"time":      e.Time.UTC().Format(time.RFC3339Nano),
		"pattern":   e.Pattern,
		"feature":   e.Feature,
		"label":     e.Label,
		"score":     e.Score,
		"threshold": e.Threshold,
	}
	if e.AlertID != "" {
		fields["alert_id"] = e.AlertID
	}
	return structpb.NewStruct(fields)
}

func durationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
