package gateway

import (
	"context"
	"errors"
	"log"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"portfolio-blotter/internal/fixclient"
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// clientMsg is any client → server message.
type clientMsg struct {
	Type    string          `json:"type"`
	ReqID   string          `json:"reqId"`
	Symbols json.RawMessage `json:"symbols"`
	Ping    int64           `json:"ping"`
}

// subscribeReply answers a SUBSCRIBE request.
type subscribeReply struct {
	Type    string   `json:"type"` // "SUBSCRIBED" or "ERROR"
	ReqID   string   `json:"reqId,omitempty"`
	Symbols []string `json:"symbols,omitempty"`
	Error   string   `json:"error,omitempty"`
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var msg clientMsg
		if json.Unmarshal(raw, &msg) != nil {
			continue
		}

		switch {
		case msg.Type == "SUBSCRIBE":
			go c.handleSubscribe(msg)
		case msg.Ping > 0:
			pong, _ := json.Marshal(map[string]any{
				"type":      "pong",
				"ping":      msg.Ping,
				"server_ts": time.Now().UnixMilli(),
			})
			c.hub.sendTo(c, pong)
		}
	}
}

// handleSubscribe forwards a SUBSCRIBE request to the market-data provider.
func (c *Client) handleSubscribe(msg clientMsg) {
	reply := subscribeReply{Type: "SUBSCRIBED", ReqID: msg.ReqID}

	if c.hub.provider == nil {
		reply = subscribeReply{Type: "ERROR", ReqID: msg.ReqID, Error: "market-data subscribe is not configured"}
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		res, err := c.hub.provider.SubscribeMarketData(ctx, parseSymbols(msg.Symbols))
		cancel()
		switch {
		case errors.Is(err, fixclient.ErrNoSymbols):
			reply = subscribeReply{Type: "ERROR", ReqID: msg.ReqID, Error: "No valid symbols entered"}
		case err != nil:
			reply = subscribeReply{Type: "ERROR", ReqID: msg.ReqID, Error: err.Error()}
		default:
			reply.Symbols = res.Symbols
		}
	}

	data, err := json.Marshal(reply)
	if err != nil {
		return
	}
	c.hub.sendTo(c, data)
}
