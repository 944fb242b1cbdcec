package relay

import "sort"

// registry pairs live connections with the device they currently stand for.
// A device has at most one connection and a connection at most one device.
type registry struct {
	byConn   map[Conn]string
	byDevice map[string]Conn
}

func newRegistry() *registry {
	return &registry{
		byConn:   make(map[Conn]string),
		byDevice: make(map[string]Conn),
	}
}

// bind maps c to deviceID and returns the connection it displaced, if any.
func (g *registry) bind(deviceID string, c Conn) Conn {
	if prev, ok := g.byConn[c]; ok && prev != deviceID {
		delete(g.byDevice, prev)
	}
	old, hadOld := g.byDevice[deviceID]
	if hadOld && old != c {
		delete(g.byConn, old)
	}
	g.byConn[c] = deviceID
	g.byDevice[deviceID] = c
	if hadOld && old != c {
		return old
	}
	return nil
}

func (g *registry) unbindConn(c Conn) (string, bool) {
	deviceID, ok := g.byConn[c]
	if !ok {
		return "", false
	}
	delete(g.byConn, c)
	delete(g.byDevice, deviceID)
	return deviceID, true
}

func (g *registry) unbindDevice(deviceID string) (Conn, bool) {
	c, ok := g.byDevice[deviceID]
	if !ok {
		return nil, false
	}
	delete(g.byDevice, deviceID)
	delete(g.byConn, c)
	return c, true
}

func (g *registry) device(c Conn) (string, bool) {
	id, ok := g.byConn[c]
	return id, ok
}

func (g *registry) conn(deviceID string) (Conn, bool) {
	c, ok := g.byDevice[deviceID]
	return c, ok
}

func (g *registry) len() int { return len(g.byConn) }

// conns returns the registered connections ordered by id so fan-out order
// is stable.
func (g *registry) conns() []Conn {
	out := make([]Conn, 0, len(g.byConn))
	for c := range g.byConn {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
