package notify

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"

	"github.com/oszuidwest/zwfm-autorecorder/internal/recording"
	"github.com/oszuidwest/zwfm-autorecorder/internal/types"
	"github.com/oszuidwest/zwfm-autorecorder/internal/upload"
)

// fakeTrapper accepts sender requests and answers each with info.
func fakeTrapper(t *testing.T, info string) (types.ZabbixConfig, <-chan zabbixRequest) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	reqs := make(chan zabbixRequest, 4)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			header := make([]byte, zabbixHeaderSize)
			if _, err := io.ReadFull(conn, header); err != nil {
				_ = conn.Close()
				continue
			}
			body := make([]byte, binary.LittleEndian.Uint64(header[5:]))
			if _, err := io.ReadFull(conn, body); err != nil {
				_ = conn.Close()
				continue
			}
			var req zabbixRequest
			_ = json.Unmarshal(body, &req)
			reqs <- req

			reply, _ := json.Marshal(zabbixResponse{Response: "success", Info: info})
			out := make([]byte, zabbixHeaderSize)
			copy(out, zabbixMagic)
			binary.LittleEndian.PutUint64(out[5:], uint64(len(reply)))
			_, _ = conn.Write(append(out, reply...))
			_ = conn.Close()
		}
	}()

	host, port, _ := net.SplitHostPort(ln.Addr().String())
	p, _ := strconv.Atoi(port)
	return types.ZabbixConfig{Server: host, Port: p, Host: "studio-rec", Key: "recorder.event"}, reqs
}

func TestZabbixRecordingSaved(t *testing.T) {
	cfg, reqs := fakeTrapper(t, "processed: 1; failed: 0; total: 1; seconds spent: 0.000055")
	n := NewNotifier(&Config{Zabbix: cfg})

	n.RecordingSaved(recording.Result{ID: "abc", Seconds: 42, Disposition: recording.Keep, Path: "/rec/take,42s.flac"})
	n.Wait()

	req := <-reqs
	if req.Request != "sender data" || len(req.Data) != 1 {
		t.Fatalf("request = %+v", req)
	}
	item := req.Data[0]
	if item.Host != "studio-rec" || item.Key != "recorder.event" {
		t.Errorf("item = %+v", item)
	}
	if item.Value != "event=recording_saved file=take,42s.flac seconds=42" {
		t.Errorf("value = %q", item.Value)
	}
}

func TestZabbixUnknownItem(t *testing.T) {
	cfg, reqs := fakeTrapper(t, "processed: 0; failed: 1; total: 1; seconds spent: 0.000055")
	z := newZabbixSender(&cfg)

	err := z.uploadAbandoned(context.Background(), "a.flac", 5)
	if err == nil || !strings.Contains(err.Error(), "processed no items") {
		t.Errorf("uploadAbandoned = %v, want processed no items", err)
	}
	if v := (<-reqs).Data[0].Value; v != "event=upload_abandoned file=a.flac attempts=5" {
		t.Errorf("value = %q", v)
	}
}

func TestZabbixUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	_ = ln.Close()

	z := newZabbixSender(&types.ZabbixConfig{Server: "127.0.0.1", Port: addr.Port, Host: "h", Key: "k"})
	if err := z.uploadAbandoned(context.Background(), "a.flac", 1); err == nil {
		t.Error("send to a closed port succeeded")
	}
}

func TestNotifierSkipsDiscardedOnZabbix(t *testing.T) {
	cfg, reqs := fakeTrapper(t, "processed: 1; failed: 0; total: 1")
	n := NewNotifier(&Config{Zabbix: cfg})
	n.RecordingSaved(recording.Result{Disposition: recording.DiscardTooShort, Path: "/rec/x.flac.tmp"})
	n.UploadAbandoned(upload.Abandoned{Filename: "b.flac", Attempts: 2})
	n.Wait()

	if v := (<-reqs).Data[0].Value; !strings.HasPrefix(v, "event=upload_abandoned") {
		t.Errorf("first event = %q, want upload_abandoned", v)
	}
	select {
	case r := <-reqs:
		t.Errorf("unexpected extra event %+v", r)
	default:
	}
}
