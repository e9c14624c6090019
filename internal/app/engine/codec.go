// internal/app/engine/codec.go
package engine

import (
	"sort"
	"time"

	"github.com/veil-chat/veil/internal/app/store/rtstore"
	"github.com/veil-chat/veil/internal/domain/models"
)

// Store layout. Messages live outside the group document so a busy
// log never rides along with group snapshots.
//
//	groups/<gid>                 group document
//	groups/<gid>/members/<uid>   one member entry
//	messages/<gid>/<key>         one message
const (
	groupsRoot   = "groups"
	messagesRoot = "messages"
)

func groupPath(groupID string) string {
	return rtstore.Join(groupsRoot, groupID)
}

func memberPath(groupID, userID string) string {
	return rtstore.Join(groupsRoot, groupID, "members", userID)
}

func messagesPath(groupID string) string {
	return rtstore.Join(messagesRoot, groupID)
}

func groupDoc(g models.Group) rtstore.Doc {
	members := rtstore.Doc{}
	for uid, m := range g.Members {
		members[uid] = memberDoc(m)
	}
	return rtstore.Doc{
		"name":        g.Name,
		"admin_id":    g.AdminID,
		"join_code":   g.JoinCode,
		"shared_link": g.SharedLink,
		"members":     members,
		"created_at":  rtstore.ServerTimestamp,
	}
}

func memberDoc(m models.Member) rtstore.Doc {
	return rtstore.Doc{
		"user_id": m.UserID,
		"alias":   m.Alias,
	}
}

func messageDoc(groupID, alias, content string) rtstore.Doc {
	return rtstore.Doc{
		"group_id":  groupID,
		"alias":     alias,
		"content":   content,
		"timestamp": rtstore.ServerTimestamp,
	}
}

// decodeGroups normalizes a snapshot of the groups root into models,
// sorted by creation time then id for a stable listing. Malformed
// children are skipped rather than failing the whole snapshot; the
// store is shared and one bad document must not blind the client.
func decodeGroups(snap rtstore.Doc) []models.Group {
	groups := make([]models.Group, 0, len(snap))
	for id, v := range snap {
		doc, ok := v.(rtstore.Doc)
		if !ok {
			continue
		}
		groups = append(groups, decodeGroup(id, doc))
	}
	sort.Slice(groups, func(i, j int) bool {
		if !groups[i].CreatedAt.Equal(groups[j].CreatedAt) {
			return groups[i].CreatedAt.Before(groups[j].CreatedAt)
		}
		return groups[i].ID < groups[j].ID
	})
	return groups
}

func decodeGroup(id string, doc rtstore.Doc) models.Group {
	g := models.Group{
		ID:         id,
		Name:       docString(doc, "name"),
		AdminID:    docString(doc, "admin_id"),
		JoinCode:   docString(doc, "join_code"),
		SharedLink: docString(doc, "shared_link"),
		CreatedAt:  docTime(doc, "created_at"),
		Members:    map[string]models.Member{},
	}
	if members, ok := doc["members"].(rtstore.Doc); ok {
		for uid, mv := range members {
			mdoc, ok := mv.(rtstore.Doc)
			if !ok {
				continue
			}
			g.Members[uid] = models.Member{
				UserID: docString(mdoc, "user_id"),
				Alias:  docString(mdoc, "alias"),
			}
		}
	}
	return g
}

// decodeMessages normalizes a snapshot of one group's log and sorts it
// by (timestamp, key). The store delivers children in storage order,
// which tracks timestamp order closely but not exactly under clock
// skew, so the re-sort happens on every notification before anything
// is published onward.
func decodeMessages(groupID string, snap rtstore.Doc) []models.Message {
	msgs := make([]models.Message, 0, len(snap))
	for key, v := range snap {
		doc, ok := v.(rtstore.Doc)
		if !ok {
			continue
		}
		msgs = append(msgs, models.Message{
			ID:        key,
			GroupID:   groupID,
			Alias:     docString(doc, "alias"),
			Content:   docString(doc, "content"),
			Timestamp: docTime(doc, "timestamp"),
		})
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Before(msgs[j]) })
	return msgs
}

func docString(doc rtstore.Doc, key string) string {
	s, _ := doc[key].(string)
	return s
}

func docTime(doc rtstore.Doc, key string) time.Time {
	t, _ := doc[key].(time.Time)
	return t
}
