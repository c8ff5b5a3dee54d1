// Package testutil provides in-process mock servers for the LDAP directory
// and memcached, speaking just enough of each protocol for the tests.
package testutil

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/go-ldap/ldap/v3"
)

func bytesToHexString(bytes []byte) string {
	if len(bytes) <= 0 {
		return ""
	}
	buf := new(strings.Builder)
	ber.PrintBytes(buf, bytes, " ")
	return buf.String()
}

// MockTCPServer accepts connections on a random loopback port and hands each
// connection to a message handler running in its own goroutine.
type MockTCPServer struct {
	l     net.Listener
	mu    sync.Mutex
	conns []net.Conn
	stop  bool
	wg    sync.WaitGroup
}

// Start listens on 127.0.0.1 and serves in the background. It returns the
// port the server listens on.
func (mockTcpServer *MockTCPServer) Start(
	msgHandler func(br *bufio.Reader, bw *bufio.Writer) error,
	errHandler func(error),
) (uint16, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	mockTcpServer.l = l
	mockTcpServer.wg.Add(1)
	go func() {
		defer mockTcpServer.wg.Done()
		for {
			conn, err := l.Accept()
			if err != nil {
				mockTcpServer.mu.Lock()
				stopped := mockTcpServer.stop
				mockTcpServer.mu.Unlock()
				// check if server was stopped anyway (the error resulted likely from a use of closed network connection)
				if stopped {
					return
				}
				errHandler(err)
				continue
			}
			mockTcpServer.mu.Lock()
			mockTcpServer.conns = append(mockTcpServer.conns, conn)
			mockTcpServer.mu.Unlock()
			mockTcpServer.wg.Add(1)
			go func() {
				defer mockTcpServer.wg.Done()
				defer conn.Close()
				msgErr := msgHandler(bufio.NewReader(conn), bufio.NewWriter(conn))
				if msgErr != nil && !errors.Is(msgErr, io.EOF) && !errors.Is(msgErr, net.ErrClosed) {
					errHandler(msgErr)
				}
			}()
		}
	}()
	return uint16(l.Addr().(*net.TCPAddr).Port), nil
}

// Addr returns host:port of the listener.
func (mockTcpServer *MockTCPServer) Addr() string {
	return mockTcpServer.l.Addr().String()
}

func (mockTcpServer *MockTCPServer) Close() {
	mockTcpServer.mu.Lock()
	mockTcpServer.stop = true
	conns := mockTcpServer.conns
	mockTcpServer.mu.Unlock()
	if mockTcpServer.l != nil {
		mockTcpServer.l.Close()
	}
	for _, c := range conns {
		c.Close()
	}
	mockTcpServer.wg.Wait()
}

// MockDirectory answers simple binds and searches. Binds succeed when the DN
// is known and the password matches; an empty DN is an anonymous bind.
// Searches return the entries registered for the search base.
type MockDirectory struct {
	mu      sync.Mutex
	users   map[string]string
	entries map[string][]*ldap.Entry
	binds   []string
	delay   time.Duration
}

func NewMockDirectory() *MockDirectory {
	return &MockDirectory{
		users:   make(map[string]string),
		entries: make(map[string][]*ldap.Entry),
	}
}

// AddUser registers a bindable DN.
func (d *MockDirectory) AddUser(dn, password string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[strings.ToLower(dn)] = password
}

// AddEntry registers an entry returned for searches below baseDN.
func (d *MockDirectory) AddEntry(baseDN string, entry *ldap.Entry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := strings.ToLower(baseDN)
	d.entries[key] = append(d.entries[key], entry)
}

// SetBindDelay holds every bind response back for delay.
func (d *MockDirectory) SetBindDelay(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delay = delay
}

// Binds returns the DNs of all bind attempts in arrival order.
func (d *MockDirectory) Binds() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.binds...)
}

func (d *MockDirectory) checkBind(dn, password string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.binds = append(d.binds, dn)
	if d.delay > 0 {
		d.mu.Unlock()
		time.Sleep(d.delay)
		d.mu.Lock()
	}
	if dn == "" {
		return true
	}
	expected, ok := d.users[strings.ToLower(dn)]
	return ok && expected == password
}

func (d *MockDirectory) search(baseDN string) []*ldap.Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.entries[strings.ToLower(baseDN)]
}

// Handle serves one LDAP connection.
func (d *MockDirectory) Handle(br *bufio.Reader, bw *bufio.Writer) error {
	for {
		packet, err := ber.ReadPacket(br)
		if err != nil {
			// client closed the connection
			return nil
		}
		if len(packet.Children) < 2 {
			return fmt.Errorf("unexpected LDAP message: %s", bytesToHexString(packet.Bytes()))
		}
		messageID, _ := packet.Children[0].Value.(int64)
		op := packet.Children[1]
		switch op.Tag {
		case ldap.ApplicationBindRequest:
			name, _ := op.Children[1].Value.(string)
			password := op.Children[2].Data.String()
			code := int64(ldap.LDAPResultSuccess)
			if !d.checkBind(name, password) {
				code = ldap.LDAPResultInvalidCredentials
			}
			bw.Write(ldapResult(messageID, ldap.ApplicationBindResponse, code, name).Bytes())
		case ldap.ApplicationSearchRequest:
			base, _ := op.Children[0].Value.(string)
			for _, entry := range d.search(base) {
				bw.Write(searchResultEntry(messageID, entry).Bytes())
			}
			bw.Write(ldapResult(messageID, ldap.ApplicationSearchResultDone, ldap.LDAPResultSuccess, "").Bytes())
		case ldap.ApplicationUnbindRequest:
			return nil
		default:
			return fmt.Errorf("unsupported LDAP operation %d", op.Tag)
		}
		if err := bw.Flush(); err != nil {
			// client closed the connection
			return nil
		}
	}
}

func envelope(messageID int64, op *ber.Packet) *ber.Packet {
	env := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "LDAP Response")
	env.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, messageID, "MessageID"))
	env.AppendChild(op)
	return env
}

func ldapResult(messageID int64, application ber.Tag, code int64, matchedDN string) *ber.Packet {
	pkt := ber.Encode(ber.ClassApplication, ber.TypeConstructed, application, nil, ldap.ApplicationMap[uint8(application)])
	pkt.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagEnumerated, code, "resultCode"))
	pkt.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, matchedDN, "matchedDN"))
	pkt.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, ldap.LDAPResultCodeMap[uint16(code)], "diagnosticMessage"))
	return envelope(messageID, pkt)
}

func searchResultEntry(messageID int64, entry *ldap.Entry) *ber.Packet {
	pkt := ber.Encode(ber.ClassApplication, ber.TypeConstructed, ldap.ApplicationSearchResultEntry, nil, "Search Result Entry")
	pkt.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, entry.DN, "objectName"))
	attributes := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "attributes")
	for _, attribute := range entry.Attributes {
		attr := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "attribute")
		attr.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, attribute.Name, "type"))
		values := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSet, nil, "vals")
		for _, value := range attribute.Values {
			values.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, value, "value"))
		}
		attr.AppendChild(values)
		attributes.AppendChild(attr)
	}
	pkt.AppendChild(attributes)
	return envelope(messageID, pkt)
}

// partly copied from https://github.com/bradfitz/gomemcache
type serverItem struct {
	flags   uint32
	data    []byte
	exp     time.Time // or zero value for no expiry
	casUniq uint64
}

// MockMemCache is an in-memory memcached speaking the text protocol
// commands used by gomemcache: get/gets, set/add/replace and delete.
type MockMemCache struct {
	mu    sync.Mutex
	items map[string]serverItem
}

func NewMockMemCache() *MockMemCache {
	return &MockMemCache{items: make(map[string]serverItem)}
}

// Len returns the number of stored items.
func (mockMemcache *MockMemCache) Len() int {
	mockMemcache.mu.Lock()
	defer mockMemcache.mu.Unlock()
	return len(mockMemcache.items)
}

// memcached treats expirations up to 30 days as relative seconds.
const relativeExpirationLimit = 60 * 60 * 24 * 30

var writeRx = regexp.MustCompile(`^(set|add|replace|append|prepend|cas) (\S+) (\d+) (\d+) (\d+)(?: (\S+))?( noreply)?\r\n`)

func (mockMemcache *MockMemCache) MockMemCachedMsgHandler(br *bufio.Reader, bw *bufio.Writer) error {
	for {
		b, err := br.ReadSlice('\n')
		if err != nil {
			return nil
		}
		line := string(b)
		switch {
		case strings.HasPrefix(line, "get"):
			keys := strings.Fields(line)[1:]
			mockMemcache.mu.Lock()
			for _, key := range keys {
				val, ok := mockMemcache.items[key]
				if !ok || (!val.exp.IsZero() && time.Now().After(val.exp)) {
					continue
				}
				fmt.Fprintf(bw, "VALUE %s %d %d %d\r\n", key, val.flags, len(val.data), val.casUniq)
				bw.Write(val.data)
				bw.Write([]byte("\r\n"))
			}
			mockMemcache.mu.Unlock()
			bw.Write([]byte("END\r\n"))
		case strings.HasPrefix(line, "delete "):
			key := strings.Fields(line)[1]
			mockMemcache.mu.Lock()
			_, ok := mockMemcache.items[key]
			delete(mockMemcache.items, key)
			mockMemcache.mu.Unlock()
			if ok {
				bw.Write([]byte("DELETED\r\n"))
			} else {
				bw.Write([]byte("NOT_FOUND\r\n"))
			}
		default:
			m := writeRx.FindStringSubmatch(line)
			if m == nil {
				return fmt.Errorf("unknown memcached command: %s", bytesToHexString(b))
			}
			key, flagsStr, exptimeStr, lenStr := m[2], m[3], m[4], m[5]
			flags, _ := strconv.ParseUint(flagsStr, 10, 32)
			exptimeVal, _ := strconv.ParseInt(exptimeStr, 10, 64)
			itemLen, _ := strconv.ParseInt(lenStr, 10, 32)
			body := make([]byte, itemLen+2)
			if _, err := io.ReadFull(br, body); err != nil {
				return fmt.Errorf("could not read message body: %w", err)
			}
			item := serverItem{
				flags:   uint32(flags),
				data:    body[:itemLen],
				casUniq: 1,
			}
			switch {
			case exptimeVal > relativeExpirationLimit:
				item.exp = time.Unix(exptimeVal, 0)
			case exptimeVal > 0:
				item.exp = time.Now().Add(time.Duration(exptimeVal) * time.Second)
			}
			mockMemcache.mu.Lock()
			mockMemcache.items[key] = item
			mockMemcache.mu.Unlock()
			bw.Write([]byte("STORED\r\n"))
		}
		if err := bw.Flush(); err != nil {
			return err
		}
	}
}
