package control

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// commandDeadline covers a full dispatch round trip through the daemon.
const commandDeadline = 2 * time.Minute

// Call sends req to the daemon at socketPath and decodes one JSON reply into out.
func Call(socketPath string, req Request, out any) error {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("cannot connect to daemon: %w", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(commandDeadline))
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return err
	}
	if err := json.NewDecoder(conn).Decode(out); err != nil {
		return fmt.Errorf("read daemon reply: %w", err)
	}
	return nil
}

// callSimple is Call for ops answered with a SimpleResponse.
func callSimple(socketPath string, req Request) (SimpleResponse, error) {
	var resp SimpleResponse
	if err := Call(socketPath, req, &resp); err != nil {
		return resp, err
	}
	if !resp.OK {
		return resp, fmt.Errorf("%s failed: %s", req.Op, resp.Message)
	}
	return resp, nil
}
