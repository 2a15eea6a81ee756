package notify

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/oszuidwest/zwfm-autorecorder/internal/types"
)

const (
	zabbixTimeout    = 5 * time.Second
	zabbixHeaderSize = 13 // "ZBXD\x01" + uint64 length
	maxZabbixReply   = 64 * 1024
)

var zabbixMagic = []byte{'Z', 'B', 'X', 'D', 0x01}

type zabbixRequest struct {
	Request string       `json:"request"`
	Data    []zabbixItem `json:"data"`
}

type zabbixItem struct {
	Host  string `json:"host"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

type zabbixResponse struct {
	Response string `json:"response"`
	Info     string `json:"info"`
}

// zabbixSender pushes recorder events to one trapper item. Values are
// "event=<name> k=v ..." so a single item can feed several triggers.
type zabbixSender struct {
	addr string
	host string
	key  string
}

func newZabbixSender(cfg *types.ZabbixConfig) *zabbixSender {
	return &zabbixSender{
		addr: net.JoinHostPort(cfg.Server, strconv.Itoa(cfg.Port)),
		host: cfg.Host,
		key:  cfg.Key,
	}
}

func (z *zabbixSender) recordingSaved(ctx context.Context, filename string, seconds int) error {
	return z.send(ctx, fmt.Sprintf("event=%s file=%s seconds=%d", EventRecordingSaved, filename, seconds))
}

func (z *zabbixSender) uploadAbandoned(ctx context.Context, filename string, attempts int) error {
	return z.send(ctx, fmt.Sprintf("event=%s file=%s attempts=%d", EventUploadAbandoned, filename, attempts))
}

func (z *zabbixSender) send(ctx context.Context, value string) error {
	data, err := json.Marshal(zabbixRequest{
		Request: "sender data",
		Data:    []zabbixItem{{Host: z.host, Key: z.key, Value: value}},
	})
	if err != nil {
		return fmt.Errorf("marshal zabbix payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, zabbixTimeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", z.addr)
	if err != nil {
		return fmt.Errorf("connect to zabbix: %w", err)
	}
	defer func() { _ = conn.Close() }()
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return fmt.Errorf("set deadline: %w", err)
		}
	}

	frame := make([]byte, zabbixHeaderSize, zabbixHeaderSize+len(data))
	copy(frame, zabbixMagic)
	binary.LittleEndian.PutUint64(frame[5:], uint64(len(data)))
	if _, err := conn.Write(append(frame, data...)); err != nil {
		return fmt.Errorf("write zabbix request: %w", err)
	}

	resp, err := readZabbixReply(conn)
	if err != nil {
		return err
	}
	if resp.Response != "success" {
		return fmt.Errorf("zabbix rejected data: %s", resp.Info)
	}
	// An unknown host or key is reported as success with nothing processed.
	if strings.Contains(resp.Info, "processed: 0;") {
		return fmt.Errorf("zabbix processed no items (check host %q and key %q)", z.host, z.key)
	}
	return nil
}

func readZabbixReply(r io.Reader) (*zabbixResponse, error) {
	header := make([]byte, zabbixHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("read zabbix reply header: %w", err)
	}
	if !bytes.Equal(header[:5], zabbixMagic) {
		return nil, errors.New("invalid zabbix reply header")
	}
	n := binary.LittleEndian.Uint64(header[5:])
	if n == 0 || n > maxZabbixReply {
		return nil, fmt.Errorf("zabbix reply length %d out of range", n)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read zabbix reply body: %w", err)
	}
	var resp zabbixResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse zabbix reply: %w", err)
	}
	return &resp, nil
}
