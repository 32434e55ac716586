package logix

import (
	"encoding/binary"
	"fmt"

	"signaltap/cip"
	"signaltap/eip"
	"signaltap/logging"
)

// send issues one Message Router request and returns the decoded reply.
// Requests are routed through the Connection Manager to the configured slot
// unless the controller is a Micro800.
func (c *Client) send(req cip.Request) (*cip.Response, error) {
	if c == nil || c.conn == nil {
		return nil, eip.ErrNotConnected
	}

	msg := req.Bytes()
	if !c.micro800 {
		wrapped, err := wrapUnconnectedSend(msg, []byte{0x01, c.slot})
		if err != nil {
			return nil, err
		}
		msg = wrapped
	}

	reply, err := c.conn.SendRRData(eip.UnconnectedPacket(msg))
	if err != nil {
		return nil, err
	}
	item, ok := reply.Find(eip.ItemUnconnectedData)
	if !ok {
		return nil, fmt.Errorf("reply carries no unconnected data item")
	}

	resp, err := cip.ParseResponse(item.Data)
	if err != nil {
		return nil, err
	}
	if !c.micro800 {
		resp, err = unwrapUnconnectedSend(resp)
		if err != nil {
			return nil, err
		}
	}
	logging.DebugLog("logix", "service 0x%02X -> status 0x%02X, %d data bytes", req.Service, resp.Status, len(resp.Data))
	return resp, nil
}

// wrapUnconnectedSend embeds msg in an Unconnected_Send request to the
// Connection Manager with the given port/link route.
func wrapUnconnectedSend(msg, route []byte) ([]byte, error) {
	if len(route)%2 != 0 {
		return nil, fmt.Errorf("route path of %d bytes is not word aligned", len(route))
	}
	path, err := cip.NewPath().Class(classConnectionManager).Instance(1).Build()
	if err != nil {
		return nil, err
	}

	data := []byte{ucmmPriorityTick, ucmmTimeoutTicks}
	data = binary.LittleEndian.AppendUint16(data, uint16(len(msg)))
	data = append(data, msg...)
	if len(msg)%2 != 0 {
		data = append(data, 0x00)
	}
	data = append(data, byte(len(route)/2), 0x00)
	data = append(data, route...)

	return cip.Request{Service: SvcUnconnectedSend, Path: path, Data: data}.Bytes(), nil
}

// unwrapUnconnectedSend returns the embedded reply of an Unconnected_Send.
// Targets that answer with the embedded reply directly pass through unchanged.
func unwrapUnconnectedSend(resp *cip.Response) (*cip.Response, error) {
	if resp.Service != SvcUnconnectedSend|cip.ReplyFlag {
		return resp, nil
	}
	if err := resp.Err(SvcUnconnectedSend); err != nil {
		return nil, fmt.Errorf("route to processor: %w", err)
	}
	return cip.ParseResponse(resp.Data)
}
