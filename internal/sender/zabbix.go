// Package sender transmits sample batches to Zabbix using the trapper
// protocol: the agent pushes, the server acknowledges with per-batch
// processed/failed counts.
package sender

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"time"

	"github.com/shigechika/speedtestz/internal/collector"
	"github.com/shigechika/speedtestz/internal/errors"
	"github.com/shigechika/speedtestz/internal/logger"
)

const (
	defaultSendTimeout = 30 * time.Second

	// maxResponseSize caps the response read; a trapper status line is
	// a few hundred bytes.
	maxResponseSize = 1 << 20
)

// protocolHeader is the trapper framing magic: "ZBXD" + protocol 0x01,
// followed by a little-endian uint64 payload length.
var protocolHeader = []byte{'Z', 'B', 'X', 'D', 0x01}

var infoPattern = regexp.MustCompile(`processed: (\d+); failed: (\d+); total: (\d+)`)

type senderRequest struct {
	Request string       `json:"request"`
	Data    []senderItem `json:"data"`
	Clock   int64        `json:"clock"`
}

type senderItem struct {
	Host  string `json:"host"`
	Key   string `json:"key"`
	Value string `json:"value"`
	Clock int64  `json:"clock"`
}

type senderResponse struct {
	Response string `json:"response"`
	Info     string `json:"info"`
}

// ZabbixSender sends batches to a Zabbix server or proxy.
type ZabbixSender struct {
	addr    string
	timeout time.Duration
}

// NewZabbix creates a trapper sender for the given server and port.
func NewZabbix(server string, port int) *ZabbixSender {
	return &ZabbixSender{
		addr:    net.JoinHostPort(server, strconv.Itoa(port)),
		timeout: defaultSendTimeout,
	}
}

// Send transmits the batch in a single trapper request. A backend that
// declines part of the batch yields a Result with Failed > 0 and an
// ErrSenderRejected error; the caller decides how to surface it.
func (s *ZabbixSender) Send(ctx context.Context, batch []collector.Sample, host string) (Result, error) {
	errFactory := errors.New()

	if len(batch) == 0 {
		return Result{}, nil
	}

	payload, err := json.Marshal(buildRequest(batch, host))
	if err != nil {
		return Result{}, errFactory.Wrap(errors.ErrSenderProtocol, err)
	}

	dialer := net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return Result{}, errFactory.Wrap(errors.ErrSenderConnect, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(s.timeout))
	}

	if err := writeFrame(conn, payload); err != nil {
		return Result{}, errFactory.Wrap(errors.ErrSenderConnect, err)
	}

	resp, err := readFrame(conn)
	if err != nil {
		return Result{}, errFactory.Wrap(errors.ErrSenderProtocol, err)
	}

	return parseResponse(resp)
}

func buildRequest(batch []collector.Sample, host string) senderRequest {
	items := make([]senderItem, len(batch))
	for i, sample := range batch {
		items[i] = senderItem{
			Host:  host,
			Key:   sample.Key,
			Value: sample.StringValue(),
			Clock: sample.Clock.Unix(),
		}
	}

	return senderRequest{
		Request: "sender data",
		Data:    items,
		Clock:   time.Now().Unix(),
	}
}

func writeFrame(w io.Writer, payload []byte) error {
	frame := make([]byte, 0, len(protocolHeader)+8+len(payload))
	frame = append(frame, protocolHeader...)
	frame = binary.LittleEndian.AppendUint64(frame, uint64(len(payload)))
	frame = append(frame, payload...)

	_, err := w.Write(frame)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, len(protocolHeader)+8)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	for i, b := range protocolHeader {
		if header[i] != b {
			return nil, fmt.Errorf("bad protocol header % x", header[:len(protocolHeader)])
		}
	}

	size := binary.LittleEndian.Uint64(header[len(protocolHeader):])
	if size > maxResponseSize {
		return nil, fmt.Errorf("response too large: %d bytes", size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	return payload, nil
}

func parseResponse(payload []byte) (Result, error) {
	errFactory := errors.New()

	var resp senderResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return Result{}, errFactory.Wrap(errors.ErrSenderProtocol, err)
	}

	result := Result{Info: resp.Info}
	if m := infoPattern.FindStringSubmatch(resp.Info); m != nil {
		result.Processed, _ = strconv.Atoi(m[1])
		result.Failed, _ = strconv.Atoi(m[2])
		result.Total, _ = strconv.Atoi(m[3])
	}

	if resp.Response != "success" {
		return result, errFactory.WithData(errors.ErrSenderRejected, resp.Info)
	}
	if result.Rejected() {
		logger.Warn().
			Int("failed", result.Failed).
			Int("total", result.Total).
			Msg("zabbix declined some samples")
		return result, errFactory.WithData(errors.ErrSenderRejected, resp.Info)
	}

	return result, nil
}
