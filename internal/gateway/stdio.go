package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"

	xerrors "OpenMCP-Wallet/internal/errors"
	"OpenMCP-Wallet/internal/observability/metrics"
	"OpenMCP-Wallet/internal/protocol"
	"OpenMCP-Wallet/internal/session"
	"OpenMCP-Wallet/pkg/logger"
)

// StdioServer 在一对管道上承载单个会话，请求与应答各占一行。
// 进程管道本身就是信任边界，这条传输不做鉴权。
type StdioServer struct {
	dispatcher *Dispatcher
	sessions   *session.Registry
	in         io.Reader
	out        io.Writer

	writeMu sync.Mutex
}

// NewStdioServer 构造 stdio 传输。
func NewStdioServer(dispatcher *Dispatcher, sessions *session.Registry, in io.Reader, out io.Writer) *StdioServer {
	return &StdioServer{dispatcher: dispatcher, sessions: sessions, in: in, out: out}
}

// Run 处理输入流直到 EOF 或上下文取消。同一条管道上的请求按到达
// 顺序依次处理。
func (s *StdioServer) Run(ctx context.Context) error {
	sess, err := s.sessions.Create(session.KindStdio, nopCloser{})
	if err != nil {
		return err
	}
	metrics.SessionOpened(string(session.KindStdio))
	defer func() {
		s.sessions.Remove(sess.ID, session.KindStdio)
		metrics.SessionClosed(string(session.KindStdio))
	}()
	logger.L().Info("stdio 会话已建立", slog.String("session_id", sess.ID))

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.in)
		scanner.Buffer(make([]byte, 64*1024), 10<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			s.handleLine(ctx, line)
		}
	}
}

func (s *StdioServer) handleLine(ctx context.Context, line string) {
	var req protocol.Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		s.writeResponse(protocol.NewError(nil, protocol.ErrCodeParse, xerrors.CodeInvalidParams, "请求不是合法的 JSON-RPC"))
		return
	}
	resp := s.dispatcher.Handle(ctx, string(session.KindStdio), &req)
	if resp != nil {
		s.writeResponse(resp)
	}
}

func (s *StdioServer) writeResponse(resp *protocol.Response) {
	payload, err := json.Marshal(resp)
	if err != nil {
		logger.L().Error("编码应答失败", slog.Any("error", err))
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, _ = s.out.Write(append(payload, '\n'))
}
