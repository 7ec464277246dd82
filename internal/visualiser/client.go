package visualiser

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client reads the NavStream service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to target without transport security; the stream is meant
// for localhost or a tailnet. opts are appended after the defaults.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Status fetches one snapshot.
func (c *Client) Status(ctx context.Context) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, getStatusMethod, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Watch calls fn for every streamed snapshot until ctx ends, the server
// closes the stream, or fn returns an error, which Watch then returns.
func (c *Client) Watch(ctx context.Context, fn func(*structpb.Struct) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := c.conn.NewStream(ctx, &navStreamDesc.Streams[0], watchStatusMethod)
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
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

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
