// Package companion talks to a node from the companion side of the
// link: one request at a time, each answered by a single reply.
package companion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/nodeos/pkg/hosted"
	"github.com/robotalks/nodeos/pkg/store"
	"github.com/robotalks/nodeos/pkg/transport"
)

// DefaultExpiration is how long a request waits for its reply.
const DefaultExpiration = 2 * time.Second

var (
	// ErrClosed is returned once the link is gone.
	ErrClosed = errors.New("companion link closed")
	// ErrUnexpectedReply indicates a reply of the wrong kind.
	ErrUnexpectedReply = errors.New("unexpected reply")
)

// RejectedError is a REJECTED reply.
type RejectedError struct {
	Reason transport.Reason
	Op     transport.Code
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Op, e.Reason)
}

// CommitFailedError is a COMMIT_FAILED reply.
type CommitFailedError struct {
	Reason transport.Reason
	Detail string
}

func (e *CommitFailedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("commit failed: %s", e.Reason)
	}
	return fmt.Sprintf("commit failed: %s: %s", e.Reason, e.Detail)
}

// Client issues requests over a link to a node.
type Client struct {
	Expiration time.Duration

	rw      transport.PacketReadWriter
	replies chan transport.Message
	done    chan struct{}
	err     error
	lock    sync.Mutex
}

// NewClient starts reading replies from rw.
func NewClient(rw transport.PacketReadWriter) *Client {
	c := &Client{
		Expiration: DefaultExpiration,
		rw:         rw,
		replies:    make(chan transport.Message, 1),
		done:       make(chan struct{}),
	}
	go c.readReplies()
	return c
}

func (c *Client) readReplies() {
	defer close(c.done)
	for {
		pkt, err := c.rw.ReadPacket()
		if err != nil {
			c.err = err
			return
		}
		msg, err := transport.Decode(pkt)
		if err != nil {
			glog.Warningf("drop packet from node: %v", err)
			continue
		}
		if !msg.Code.IsReply() {
			glog.Warningf("drop %s from node", msg.Code)
			continue
		}
		select {
		case c.replies <- msg:
		default:
			glog.Warningf("drop unsolicited %s", msg.Code)
		}
	}
}

// Close closes the link.
func (c *Client) Close() error {
	if closer, ok := c.rw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Do sends a request and waits for its reply. REJECTED and
// COMMIT_FAILED replies are returned as errors.
func (c *Client) Do(ctx context.Context, msg transport.Message) (transport.Message, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	// a late reply of a timed out request is not ours.
	select {
	case stale := <-c.replies:
		glog.Warningf("drop late %s", stale.Code)
	default:
	}
	if err := c.rw.WritePacket(msg.Encode()); err != nil {
		return transport.Message{}, err
	}
	expiration := c.Expiration
	if expiration <= 0 {
		expiration = DefaultExpiration
	}
	timer := time.NewTimer(expiration)
	defer timer.Stop()
	select {
	case reply := <-c.replies:
		return reply, replyErr(reply)
	case <-c.done:
		if c.err != nil && c.err != io.EOF {
			return transport.Message{}, fmt.Errorf("%w: %v", ErrClosed, c.err)
		}
		return transport.Message{}, ErrClosed
	case <-timer.C:
		return transport.Message{}, fmt.Errorf("%s: %w", msg.Code, context.DeadlineExceeded)
	case <-ctx.Done():
		return transport.Message{}, ctx.Err()
	}
}

func replyErr(reply transport.Message) error {
	switch reply.Code {
	case transport.CodeRejected:
		reason, op, err := reply.Rejection()
		if err != nil {
			return err
		}
		return &RejectedError{Reason: reason, Op: op}
	case transport.CodeCommitFailed:
		reason, detail, err := reply.Failure()
		if err != nil {
			return err
		}
		return &CommitFailedError{Reason: reason, Detail: detail}
	}
	return nil
}

func (c *Client) expect(ctx context.Context, msg transport.Message, code transport.Code) (transport.Message, error) {
	reply, err := c.Do(ctx, msg)
	if err != nil {
		return reply, err
	}
	if reply.Code != code {
		return reply, fmt.Errorf("%w %s to %s", ErrUnexpectedReply, reply.Code, msg.Code)
	}
	return reply, nil
}

// Reprogram arms the update session.
func (c *Client) Reprogram(ctx context.Context) error {
	_, err := c.expect(ctx, transport.Simple(transport.CodeReprogram), transport.CodeReady)
	return err
}

// ErasePage erases the flash page at addr.
func (c *Client) ErasePage(ctx context.Context, addr uint32) error {
	_, err := c.expect(ctx, transport.ErasePage(addr), transport.CodeReady)
	return err
}

// WriteRow writes one flash row at addr.
func (c *Client) WriteRow(ctx context.Context, addr uint32, row []byte) error {
	_, err := c.expect(ctx, transport.WriteRow(addr, row), transport.CodeReady)
	return err
}

// Commit smoke tests and commits the written image.
func (c *Client) Commit(ctx context.Context) error {
	_, err := c.expect(ctx, transport.Simple(transport.CodeReflashed), transport.CodeReady)
	return err
}

// Config reads the persisted node config.
func (c *Client) Config(ctx context.Context) (store.NodeConfig, error) {
	reply, err := c.expect(ctx, transport.Simple(transport.CodeConfigReq), transport.CodeConfigResp)
	if err != nil {
		return store.NodeConfig{}, err
	}
	return reply.Config()
}

// UpdateConfig persists a node config, effective after reset.
func (c *Client) UpdateConfig(ctx context.Context, conf store.NodeConfig) error {
	_, err := c.expect(ctx, transport.ConfigMessage(transport.CodeConfigUpdate, conf), transport.CodeReady)
	return err
}

// AppInfo reads the installed application info, ok is false if no valid
// application is installed.
func (c *Client) AppInfo(ctx context.Context) (info hosted.Info, ok bool, err error) {
	reply, err := c.expect(ctx, transport.Simple(transport.CodeAppInfoReq), transport.CodeAppInfoResp)
	if err != nil {
		return info, false, err
	}
	valid, strs, err := reply.AppInfo()
	if err != nil || !valid {
		return info, false, err
	}
	strs = append(strs, make([]string, 4)...)
	return hosted.Info{Author: strs[0], Description: strs[1], Version: strs[2], URI: strs[3]}, true, nil
}

// HardwareInfo reads the board strings.
func (c *Client) HardwareInfo(ctx context.Context) ([]string, error) {
	reply, err := c.expect(ctx, transport.Simple(transport.CodeHardwareInfoReq), transport.CodeHardwareInfoResp)
	if err != nil {
		return nil, err
	}
	return reply.Strings(), nil
}

// BootcodeInfo reads the boot code strings.
func (c *Client) BootcodeInfo(ctx context.Context) (hosted.Info, error) {
	reply, err := c.expect(ctx, transport.Simple(transport.CodeBootcodeInfoReq), transport.CodeBootcodeInfoResp)
	if err != nil {
		return hosted.Info{}, err
	}
	strs := append(reply.Strings(), make([]string, 4)...)
	return hosted.Info{Author: strs[0], Description: strs[1], Version: strs[2], URI: strs[3]}, nil
}

// FirmwareInfo reads the node firmware strings.
func (c *Client) FirmwareInfo(ctx context.Context) ([]string, error) {
	reply, err := c.expect(ctx, transport.Simple(transport.CodeFirmwareInfoReq), transport.CodeFirmwareInfoResp)
	if err != nil {
		return nil, err
	}
	return reply.Strings(), nil
}
