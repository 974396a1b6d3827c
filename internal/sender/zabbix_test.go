package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shigechika/speedtestz/internal/collector"
	"github.com/shigechika/speedtestz/internal/errors"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"request":"sender data"}`)

	require.NoError(t, writeFrame(&buf, payload))

	got, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestReadFrameRejectsBadHeader(t *testing.T) {
	frame := append([]byte("XXXX\x01"), make([]byte, 8)...)

	_, err := readFrame(bytes.NewReader(frame))
	assert.Error(t, err)
}

func TestParseResponseSuccess(t *testing.T) {
	payload := []byte(`{"response":"success","info":"processed: 3; failed: 0; total: 3; seconds spent: 0.000123"}`)

	result, err := parseResponse(payload)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 3, result.Total)
	assert.False(t, result.Rejected())
}

func TestParseResponsePartialRejection(t *testing.T) {
	payload := []byte(`{"response":"success","info":"processed: 2; failed: 1; total: 3; seconds spent: 0.000123"}`)

	result, err := parseResponse(payload)
	require.Error(t, err)
	assert.Equal(t, errors.ErrSenderRejected, errors.CodeOf(err))
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Failed)
	assert.True(t, result.Rejected())
}

func TestParseResponseFailure(t *testing.T) {
	payload := []byte(`{"response":"failed","info":"invalid request"}`)

	_, err := parseResponse(payload)
	require.Error(t, err)
	assert.Equal(t, errors.ErrSenderRejected, errors.CodeOf(err))
}

func TestSendEmptyBatchIsNoOp(t *testing.T) {
	// Unroutable address: an empty batch must return before dialing.
	s := NewZabbix("127.0.0.1", 1)

	result, err := s.Send(context.Background(), nil, "host")
	assert.NoError(t, err)
	assert.Zero(t, result.Total)
}

func TestSendTransmitsSingleTrapperRequest(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	requests := make(chan senderRequest, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		payload, err := readFrame(conn)
		if err != nil {
			return
		}
		var req senderRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return
		}
		requests <- req

		resp, _ := json.Marshal(senderResponse{
			Response: "success",
			Info:     "processed: 2; failed: 0; total: 2; seconds spent: 0.000045",
		})
		writeFrame(conn, resp)
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	captured := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	batch := []collector.Sample{
		{Key: "ookla.download", Value: 940.2, Clock: captured},
		{Key: "ookla.upload", Value: 820, Clock: captured},
	}

	s := NewZabbix(host, port)
	result, err := s.Send(context.Background(), batch, "speedtest-agent")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 2, result.Total)

	req := <-requests
	assert.Equal(t, "sender data", req.Request)
	require.Len(t, req.Data, 2)
	assert.Equal(t, "speedtest-agent", req.Data[0].Host)
	assert.Equal(t, "ookla.download", req.Data[0].Key)
	assert.Equal(t, "940.2", req.Data[0].Value)
	assert.Equal(t, captured.Unix(), req.Data[0].Clock)
	assert.Equal(t, "820", req.Data[1].Value)
}

func TestSendSurfacesServerRejection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		if _, err := readFrame(conn); err != nil {
			return
		}
		resp, _ := json.Marshal(senderResponse{
			Response: "success",
			Info:     "processed: 0; failed: 1; total: 1; seconds spent: 0.000045",
		})
		writeFrame(conn, resp)
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	batch := []collector.Sample{{Key: "usen.download", Value: 1, Clock: time.Now()}}

	s := NewZabbix(host, port)
	result, err := s.Send(context.Background(), batch, "speedtest-agent")
	require.Error(t, err)
	assert.Equal(t, errors.ErrSenderRejected, errors.CodeOf(err))
	assert.True(t, result.Rejected())
}

func TestSendConnectFailure(t *testing.T) {
	// Reserved port with nothing listening.
	s := NewZabbix("127.0.0.1", 1)
	s.timeout = time.Second

	batch := []collector.Sample{{Key: "usen.download", Value: 1, Clock: time.Now()}}

	_, err := s.Send(context.Background(), batch, "speedtest-agent")
	require.Error(t, err)
	assert.Equal(t, errors.ErrSenderConnect, errors.CodeOf(err))
}
