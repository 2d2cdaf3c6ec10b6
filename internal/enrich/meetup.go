// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package enrich

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bcem/gelk/internal/models"
)

const meetupSource = "meetup"

// enrichEvent builds the event item followed by one item per comment and
// one per rsvp. All of them share perceval_uuid.
func (e *Enricher) enrichEvent(ctx context.Context, item *models.RawItem) ([]models.RichItem, error) {
	data := item.Data
	if stringOf(data["id"]) == "" {
		return nil, fmt.Errorf("raw item %s: event without id", item.UUID)
	}

	offset := int64(numberOf(data["utc_offset"]))
	var eventTime time.Time
	if ms := numberOf(data["time"]); ms != 0 {
		eventTime = fromMillis(int64(ms), offset)
	} else {
		eventTime = time.Unix(int64(item.UpdatedOn), 0).UTC()
	}

	event := e.baseFields(item)
	e.addEventContext(event, data)

	event["is_meetup_event"] = 1
	event["id"] = stringOf(data["id"])
	event["status"] = stringOf(data["status"])
	event["link"] = stringOf(data["link"])
	event["visibility"] = stringOf(data["visibility"])
	event["description_analyzed"] = stringOf(data["description"])
	event["duration"] = numberOf(data["duration"])
	event["yes_rsvp_count"] = numberOf(data["yes_rsvp_count"])
	event["rsvp_limit"] = numberOf(data["rsvp_limit"])
	if created := numberOf(data["created"]); created != 0 {
		event["created"] = fromMillis(int64(created), offset).UTC().Format(isoLayout)
	}
	addDateFields(event, "event", eventTime)
	event["grimoire_creation_date"] = eventTime.Format(time.RFC3339)

	if venue, ok := data["venue"].(map[string]any); ok {
		event["venue_id"] = stringOf(venue["id"])
		event["venue_name"] = stringOf(venue["name"])
		event["venue_city"] = stringOf(venue["city"])
		event["venue_country"] = stringOf(venue["localized_country_name"])
		event["venue_geolocation"] = geolocation(venue)
	}

	var host models.Identity
	if hosts, ok := data["event_hosts"].([]any); ok && len(hosts) > 0 {
		if h, ok := hosts[0].(map[string]any); ok {
			host = memberIdentity(h)
		}
		event["num_hosts"] = len(hosts)
	}
	e.addMemberFields(ctx, event, host)

	comments, _ := data["comments"].([]any)
	rsvps, _ := data["rsvps"].([]any)
	event["num_comments"] = len(comments)
	event["num_rsvps"] = len(rsvps)

	yes, no := 0, 0
	for _, r := range rsvps {
		if rm, ok := r.(map[string]any); ok {
			switch stringOf(rm["response"]) {
			case "yes":
				yes++
			case "no":
				no++
			}
		}
	}
	event["rsvps_yes"] = yes
	event["rsvps_no"] = no

	out := []models.RichItem{event}

	for i, c := range comments {
		cm, ok := c.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, e.enrichComment(ctx, item, data, cm, i, offset))
	}
	for i, r := range rsvps {
		rm, ok := r.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, e.enrichRSVP(ctx, item, data, rm, i, offset, eventTime))
	}
	return out, nil
}

// subItemUUID ids a comment or rsvp of an event. Entries without an id
// fall back to their position so they do not overwrite each other.
func subItemUUID(event, kind, id string, pos int) string {
	if id == "" {
		return event + "_" + kind + "_pos" + strconv.Itoa(pos)
	}
	return event + "_" + kind + "_" + id
}

func (e *Enricher) enrichComment(ctx context.Context, item *models.RawItem, event, comment map[string]any, pos int, offset int64) models.RichItem {
	rich := e.baseFields(item)
	e.addEventContext(rich, event)

	id := stringOf(comment["id"])
	rich["uuid"] = subItemUUID(item.UUID, "comment", id, pos)
	rich["is_meetup_comment"] = 1
	rich["comment_id"] = id
	rich["comment"] = stringOf(comment["comment"])
	rich["comment_analyzed"] = stringOf(comment["comment"])
	rich["like_count"] = numberOf(comment["like_count"])

	created := fromMillis(int64(numberOf(comment["created"])), offset)
	addDateFields(rich, "comment", created)
	rich["grimoire_creation_date"] = created.Format(time.RFC3339)

	member, _ := comment["member"].(map[string]any)
	e.addMemberFields(ctx, rich, memberIdentity(member))
	return rich
}

func (e *Enricher) enrichRSVP(ctx context.Context, item *models.RawItem, event, rsvp map[string]any, pos int, offset int64, eventTime time.Time) models.RichItem {
	rich := e.baseFields(item)
	e.addEventContext(rich, event)

	member, _ := rsvp["member"].(map[string]any)
	id := memberIdentity(member)
	rich["uuid"] = subItemUUID(item.UUID, "rsvp", id.ID, pos)
	rich["is_meetup_rsvp"] = 1
	rich["rsvps_response"] = stringOf(rsvp["response"])
	rich["rsvps_guests"] = numberOf(rsvp["guests"])

	isHost := false
	if member != nil {
		if ctxm, ok := member["event_context"].(map[string]any); ok {
			isHost, _ = ctxm["host"].(bool)
		}
	}
	rich["rsvps_is_host"] = isHost

	when := eventTime
	if ms := numberOf(rsvp["created"]); ms != 0 {
		when = fromMillis(int64(ms), offset)
	}
	addDateFields(rich, "rsvp", when)
	rich["grimoire_creation_date"] = when.Format(time.RFC3339)

	e.addMemberFields(ctx, rich, id)
	return rich
}

// addEventContext copies the event and group fields that every item
// derived from an event carries.
func (e *Enricher) addEventContext(rich models.RichItem, event map[string]any) {
	rich["meetup_event_id"] = stringOf(event["id"])
	rich["title"] = stringOf(event["name"])

	group, ok := event["group"].(map[string]any)
	if !ok {
		return
	}
	rich["group_id"] = stringOf(group["id"])
	rich["group_name"] = stringOf(group["name"])
	rich["group_urlname"] = stringOf(group["urlname"])
	rich["group_geolocation"] = geolocation(group)

	var topics []string
	if ts, ok := group["topics"].([]any); ok {
		for _, t := range ts {
			if tm, ok := t.(map[string]any); ok {
				topics = append(topics, stringOf(tm["name"]))
			}
		}
	}
	if topics == nil {
		topics = []string{}
	}
	rich["group_topics"] = topics
}

// addMemberFields resolves a meetup member as the item's author. Meetup
// identities have no email, so the domain is always nil.
func (e *Enricher) addMemberFields(ctx context.Context, rich models.RichItem, id models.Identity) {
	p := e.resolve(ctx, meetupSource, id)
	rich["author_name"] = id.Name
	rich["author_domain"] = nil
	rich["author_uuid"] = p.RenderUUID()
	if e.identityMode {
		profileFields(rich, "author", p)
	}
}

func memberIdentity(m map[string]any) models.Identity {
	if m == nil {
		return models.Identity{}
	}
	id := stringOf(m["id"])
	return models.Identity{ID: id, Name: stringOf(m["name"]), Username: id}
}

func geolocation(m map[string]any) any {
	lat, latOK := m["lat"].(float64)
	lon, lonOK := m["lon"].(float64)
	if !latOK || !lonOK {
		return nil
	}
	return map[string]any{"lat": lat, "lon": lon}
}

func numberOf(v any) float64 {
	f, _ := v.(float64)
	return f
}
