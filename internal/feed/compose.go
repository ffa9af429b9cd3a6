// adaptorlib - Enterprise Search Appliance adaptor core
// SPDX-License-Identifier: Apache-2.0

// Package feed composes the Appliance's XML docid-feed format and
// sends it over HTTP, with retry, circuit breaking, and a pluggable
// error-handling policy.
package feed

import (
	"encoding/xml"
	"fmt"

	"github.com/tomtom215/adaptorlib/acl"
	"github.com/tomtom215/adaptorlib/docid"
)

// Type distinguishes a full listing from an incremental one; the
// Appliance treats a "full" feed as authoritative for deletion (any
// previously-seen DocId absent from a full feed is implicitly
// removed), while an "incremental" feed only ever adds or updates.
type Type string

const (
	Full        Type = "full"
	Incremental Type = "incremental"
)

type xmlFeed struct {
	XMLName  xml.Name    `xml:"gsafeed"`
	Header   xmlHeader   `xml:"header"`
	Group    xmlGroup    `xml:"group"`
}

type xmlHeader struct {
	Datasource string `xml:"datasource"`
	FeedType   string `xml:"feedtype"`
}

type xmlGroup struct {
	Records []xmlRecord `xml:"record"`
}

type xmlRecord struct {
	URL              string         `xml:"url,attr"`
	LastModified     string         `xml:"last-modified,attr,omitempty"`
	Action           string         `xml:"action,attr,omitempty"`
	CrawlImmediately string         `xml:"crawl-immediately,attr,omitempty"`
	Lock             string         `xml:"lock,attr,omitempty"`
	ACL              *xmlACL        `xml:"acl,omitempty"`
}

type xmlACL struct {
	InheritFrom     string         `xml:"inherit-from,attr,omitempty"`
	InheritanceType string         `xml:"inheritance-type,attr,omitempty"`
	Principals      []xmlPrincipal `xml:"principal"`
}

type xmlPrincipal struct {
	Scope   string `xml:"scope,attr"`
	Access  string `xml:"access,attr"`
	Value   string `xml:",chardata"`
}

const rfc822 = "Mon, 02 Jan 2006 15:04:05 MST"

// Compose renders records into the Appliance's XML feed document for
// datasource ds; Sender wraps it in the multipart POST body. Record order in the output matches the order of
// records (invariant: batch order is preserved end to end).
func Compose(ds string, feedType Type, codec *docid.Codec, records []docid.Record) ([]byte, error) {
	group := xmlGroup{Records: make([]xmlRecord, 0, len(records))}

	for _, r := range records {
		rec := xmlRecord{
			URL: codec.Encode(r.ID).String(),
		}
		if r.LastModified != nil {
			rec.LastModified = r.LastModified.UTC().Format(rfc822)
		}
		if r.Delete {
			rec.Action = "delete"
		}
		if r.CrawlImmediately {
			rec.CrawlImmediately = "true"
		}
		if r.Lock {
			rec.Lock = "true"
		}
		group.Records = append(group.Records, rec)
	}

	feed := xmlFeed{
		Header: xmlHeader{Datasource: ds, FeedType: string(feedType)},
		Group:  group,
	}

	out, err := xml.MarshalIndent(feed, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("feed: marshal: %w", err)
	}

	var buf []byte
	buf = append(buf, []byte(xml.Header)...)
	buf = append(buf, out...)
	return buf, nil
}

// ComposeNamedResources renders a set of ACL-only records (no content,
// used to establish inheritance roots independent of any document) per
// spec.md's Named Resource push.
func ComposeNamedResources(ds string, codec *docid.Codec, resources map[docid.ID]acl.ACL) ([]byte, error) {
	group := xmlGroup{Records: make([]xmlRecord, 0, len(resources))}

	for id, a := range resources {
		rec := xmlRecord{URL: codec.Encode(id).String()}
		rec.ACL = aclToXML(a)
		group.Records = append(group.Records, rec)
	}

	feed := xmlFeed{
		Header: xmlHeader{Datasource: ds, FeedType: "metadata-and-url"},
		Group:  group,
	}

	out, err := xml.MarshalIndent(feed, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("feed: marshal named resources: %w", err)
	}
	var buf []byte
	buf = append(buf, []byte(xml.Header)...)
	buf = append(buf, out...)
	return buf, nil
}

func aclToXML(a acl.ACL) *xmlACL {
	x := &xmlACL{}
	if a.InheritFrom != "" {
		x.InheritFrom = string(a.InheritFrom)
		x.InheritanceType = a.InheritanceType.String()
	}
	for _, u := range a.PermitUsers {
		x.Principals = append(x.Principals, xmlPrincipal{Scope: "user", Access: "permit", Value: u})
	}
	for _, u := range a.DenyUsers {
		x.Principals = append(x.Principals, xmlPrincipal{Scope: "user", Access: "deny", Value: u})
	}
	for _, g := range a.PermitGroups {
		x.Principals = append(x.Principals, xmlPrincipal{Scope: "group", Access: "permit", Value: g})
	}
	for _, g := range a.DenyGroups {
		x.Principals = append(x.Principals, xmlPrincipal{Scope: "group", Access: "deny", Value: g})
	}
	return x
}
