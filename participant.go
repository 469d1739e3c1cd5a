package audiomix

import (
	"fmt"
	"sort"
)

// LocalUID is the roster key of the local participant.
const LocalUID uint32 = 0

// Participant is one placeholder entry of the session view.
type Participant struct {
	UID         uint32
	Local       bool
	Label       string
	Volume      int
	HasVolume   bool
	Channel     *ChannelStats
	LocalAudio  *LocalAudioStats
	RemoteAudio *RemoteAudioStats
}

// Info is the secondary text shown under the label.
func (p Participant) Info() string {
	if !p.HasVolume {
		return ""
	}
	return fmt.Sprintf("Volume:%d", p.Volume)
}

func localLabel(uid uint32) string  { return fmt.Sprintf("Local uid: %d", uid) }
func remoteLabel(uid uint32) string { return fmt.Sprintf("Remote uid: %d", uid) }

// Roster maps participant ids to view entries. It is not safe for concurrent
// use; a Session only touches it from its dispatch goroutine.
type Roster struct {
	entries map[uint32]*Participant
}

func NewRoster() *Roster {
	return &Roster{entries: make(map[uint32]*Participant)}
}

func (r *Roster) Len() int { return len(r.entries) }

func (r *Roster) Has(uid uint32) bool {
	_, ok := r.entries[uid]
	return ok
}

func (r *Roster) Get(uid uint32) (Participant, bool) {
	p, ok := r.entries[uid]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

// AddLocal creates (or replaces) the local entry. assignedUID is the id the
// engine gave the local user; the entry is still keyed by LocalUID.
func (r *Roster) AddLocal(assignedUID uint32) *Participant {
	p := &Participant{UID: LocalUID, Local: true, Label: localLabel(assignedUID)}
	r.entries[LocalUID] = p
	return p
}

func (r *Roster) AddRemote(uid uint32) *Participant {
	p := &Participant{UID: uid, Label: remoteLabel(uid)}
	r.entries[uid] = p
	return p
}

func (r *Roster) Remove(uid uint32) bool {
	if _, ok := r.entries[uid]; !ok {
		return false
	}
	delete(r.entries, uid)
	return true
}

// SetVolume updates an existing entry. Unknown ids are ignored.
func (r *Roster) SetVolume(uid uint32, volume int) bool {
	p, ok := r.entries[uid]
	if !ok {
		return false
	}
	p.Volume = volume
	p.HasVolume = true
	return true
}

func (r *Roster) SetChannelStats(uid uint32, stats ChannelStats) bool {
	p, ok := r.entries[uid]
	if !ok {
		return false
	}
	p.Channel = &stats
	return true
}

func (r *Roster) SetLocalAudioStats(uid uint32, stats LocalAudioStats) bool {
	p, ok := r.entries[uid]
	if !ok {
		return false
	}
	p.LocalAudio = &stats
	return true
}

func (r *Roster) SetRemoteAudioStats(stats RemoteAudioStats) bool {
	p, ok := r.entries[stats.UID]
	if !ok {
		return false
	}
	p.RemoteAudio = &stats
	return true
}

// Sorted returns copies of all entries, ascending by UID.
func (r *Roster) Sorted() []Participant {
	out := make([]Participant, 0, len(r.entries))
	for _, p := range r.entries {
		out = append(out, *p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}
