package directory

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/xrdtools/catalog/internal/xroad"
)

// Member is one directory member organization.
type Member struct {
	XRoadInstance string
	MemberClass   string
	MemberCode    string
	Name          string
}

// Parts returns the member as an identifier part slice.
func (m Member) Parts() []string {
	return []string{m.XRoadInstance, m.MemberClass, m.MemberCode}
}

// Subsystem is one service boundary under a member.
type Subsystem struct {
	XRoadInstance string
	MemberClass   string
	MemberCode    string
	SubsystemCode string
	MemberName    string
}

// Parts returns the subsystem as an identifier part slice.
func (s Subsystem) Parts() []string {
	return []string{s.XRoadInstance, s.MemberClass, s.MemberCode, s.SubsystemCode}
}

// String returns the percent-encoded identifier form of the subsystem.
func (s Subsystem) String() string { return xroad.Identifier(s.Parts()) }

// SecurityServer is one gateway node listed in the directory.
type SecurityServer struct {
	OwnerInstance string
	OwnerClass    string
	OwnerCode     string
	ServerCode    string
	Address       string
}

// SubsystemServer pairs a subsystem with one security server that serves
// it. Server is nil when the subsystem is not registered anywhere.
type SubsystemServer struct {
	Subsystem Subsystem
	Server    *SecurityServer
}

// Index is an immutable parse of one directory document, valid for one
// crawl run.
type Index struct {
	instance   string
	members    []memberNode
	servers    []serverNode
	clients    map[string]bool // subsystem internal id -> registered
	memberByID map[string]int  // member internal id -> members index
}

type memberNode struct {
	Member
	subsystems []subsystemNode
}

type subsystemNode struct {
	id   string
	code string
}

type serverNode struct {
	ownerID    string
	serverCode string
	address    string
	clients    []string
}

// Parse builds an Index from a directory document. Structurally required
// fields that are missing surface as a wrapped parse error.
func Parse(doc string) (*Index, error) {
	root, err := xmlquery.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse directory document: %w", err)
	}
	conf := xmlquery.FindOne(root, "/conf")
	if conf == nil {
		// Tolerate any root element name; the schema root varies between
		// shared-params versions.
		for child := root.FirstChild; child != nil; child = child.NextSibling {
			if child.Type == xmlquery.ElementNode {
				conf = child
				break
			}
		}
	}
	if conf == nil {
		return nil, fmt.Errorf("parse directory document: no root element")
	}

	idx := &Index{
		clients:    make(map[string]bool),
		memberByID: make(map[string]int),
	}
	instance := xmlquery.FindOne(conf, "instanceIdentifier")
	if instance == nil {
		return nil, fmt.Errorf("parse directory document: missing instanceIdentifier")
	}
	idx.instance = instance.InnerText()

	for _, m := range xmlquery.Find(conf, "member") {
		node := memberNode{}
		node.XRoadInstance = idx.instance
		if node.MemberClass, err = requiredText(m, "memberClass/code"); err != nil {
			return nil, err
		}
		if node.MemberCode, err = requiredText(m, "memberCode"); err != nil {
			return nil, err
		}
		if node.Name, err = requiredText(m, "name"); err != nil {
			return nil, err
		}
		for _, s := range xmlquery.Find(m, "subsystem") {
			code, err := requiredText(s, "subsystemCode")
			if err != nil {
				return nil, err
			}
			node.subsystems = append(node.subsystems, subsystemNode{
				id:   s.SelectAttr("id"),
				code: code,
			})
		}
		if id := m.SelectAttr("id"); id != "" {
			idx.memberByID[id] = len(idx.members)
		}
		idx.members = append(idx.members, node)
	}

	for _, srv := range xmlquery.Find(conf, "securityServer") {
		node := serverNode{}
		if node.ownerID, err = requiredText(srv, "owner"); err != nil {
			return nil, err
		}
		if node.serverCode, err = requiredText(srv, "serverCode"); err != nil {
			return nil, err
		}
		if node.address, err = requiredText(srv, "address"); err != nil {
			return nil, err
		}
		for _, c := range xmlquery.Find(srv, "client") {
			clientID := c.InnerText()
			node.clients = append(node.clients, clientID)
			idx.clients[clientID] = true
		}
		idx.servers = append(idx.servers, node)
	}
	return idx, nil
}

func requiredText(n *xmlquery.Node, path string) (string, error) {
	found := xmlquery.FindOne(n, path)
	if found == nil {
		return "", fmt.Errorf("parse directory document: missing %s element", path)
	}
	return found.InnerText(), nil
}

// Instance returns the directory's instance identifier.
func (idx *Index) Instance() string { return idx.instance }

// Members lists every member organization.
func (idx *Index) Members() []Member {
	members := make([]Member, 0, len(idx.members))
	for _, m := range idx.members {
		members = append(members, m.Member)
	}
	return members
}

// Subsystems lists every subsystem, registered or not. MemberName is
// populated so callers needing the owner name do not re-query.
func (idx *Index) Subsystems() []Subsystem {
	var subsystems []Subsystem
	for _, m := range idx.members {
		for _, s := range m.subsystems {
			subsystems = append(subsystems, Subsystem{
				XRoadInstance: m.XRoadInstance,
				MemberClass:   m.MemberClass,
				MemberCode:    m.MemberCode,
				SubsystemCode: s.code,
				MemberName:    m.Name,
			})
		}
	}
	return subsystems
}

// RegisteredSubsystems lists subsystems referenced as a client by at least
// one security server.
func (idx *Index) RegisteredSubsystems() []Subsystem {
	var subsystems []Subsystem
	for _, m := range idx.members {
		for _, s := range m.subsystems {
			if !idx.clients[s.id] {
				continue
			}
			subsystems = append(subsystems, Subsystem{
				XRoadInstance: m.XRoadInstance,
				MemberClass:   m.MemberClass,
				MemberCode:    m.MemberCode,
				SubsystemCode: s.code,
				MemberName:    m.Name,
			})
		}
	}
	return subsystems
}

// SubsystemsWithServer yields one row per (subsystem, owning server) pair
// and a row with a nil Server for unregistered subsystems.
func (idx *Index) SubsystemsWithServer() ([]SubsystemServer, error) {
	var rows []SubsystemServer
	for _, m := range idx.members {
		for _, s := range m.subsystems {
			sub := Subsystem{
				XRoadInstance: m.XRoadInstance,
				MemberClass:   m.MemberClass,
				MemberCode:    m.MemberCode,
				SubsystemCode: s.code,
				MemberName:    m.Name,
			}
			found := false
			for _, srv := range idx.servers {
				if !containsString(srv.clients, s.id) {
					continue
				}
				server, err := idx.resolveServer(srv)
				if err != nil {
					return nil, err
				}
				rows = append(rows, SubsystemServer{Subsystem: sub, Server: server})
				found = true
			}
			if !found {
				rows = append(rows, SubsystemServer{Subsystem: sub})
			}
		}
	}
	return rows, nil
}

// Servers lists every security server with its owner identifiers.
func (idx *Index) Servers() ([]SecurityServer, error) {
	servers := make([]SecurityServer, 0, len(idx.servers))
	for _, srv := range idx.servers {
		server, err := idx.resolveServer(srv)
		if err != nil {
			return nil, err
		}
		servers = append(servers, *server)
	}
	return servers, nil
}

func (idx *Index) resolveServer(srv serverNode) (*SecurityServer, error) {
	pos, ok := idx.memberByID[srv.ownerID]
	if !ok {
		return nil, fmt.Errorf("parse directory document: unknown server owner %q", srv.ownerID)
	}
	owner := idx.members[pos]
	return &SecurityServer{
		OwnerInstance: idx.instance,
		OwnerClass:    owner.MemberClass,
		OwnerCode:     owner.MemberCode,
		ServerCode:    srv.serverCode,
		Address:       srv.address,
	}, nil
}

// AddrIPs resolves a server address to its IP addresses. Resolution
// failure is swallowed: a partial or empty IP list is an acceptable result.
func AddrIPs(ctx context.Context, address string) []string {
	var ips []string
	if list, err := net.DefaultResolver.LookupIP(ctx, "ip", address); err == nil {
		for _, ip := range list {
			ips = append(ips, ip.String())
		}
	}
	return ips
}

// ServerIPs resolves every server address in the directory, dropping
// addresses that do not resolve.
func (idx *Index) ServerIPs(ctx context.Context) []string {
	var ips []string
	for _, srv := range idx.servers {
		ips = append(ips, AddrIPs(ctx, srv.address)...)
	}
	return ips
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
