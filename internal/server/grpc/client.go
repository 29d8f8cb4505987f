package grpc

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls a remote chime.v1.Detector
type Client struct {
	conn *grpc.ClientConn
	own  bool
}

// Dial connects to addr without transport security
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return &Client{conn: conn, own: true}, nil
}

// NewClient wraps an existing connection
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Status fetches the detector status
func (c *Client) Status(ctx context.Context) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, statusMethod, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Watch streams events to fn until ctx is done, the server ends the stream
// or fn returns an error. Kinds filters events; none means all.
func (c *Client) Watch(ctx context.Context, fn func(*structpb.Struct) error, kinds ...string) error {
	stream, err := c.conn.NewStream(ctx, &detectorServiceDesc.Streams[0], watchMethod)
	if err != nil {
		return err
	}

	list := make([]any, len(kinds))
	for i, k := range kinds {
		list[i] = k
	}
	req, err := structpb.NewStruct(map[string]any{"kinds": list})
	if err != nil {
		return err
	}
	if err := stream.SendMsg(req); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}

	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
}

// Close closes a connection opened by Dial
func (c *Client) Close() error {
	if !c.own {
		return nil
	}
	return c.conn.Close()
}
