package stream

import (
	"fmt"
	"strings"
	"sync"
)

// Topics an event is published on:
//
//	firehose          every event
//	jobs              every job event
//	schedules         every schedule event
//	job:<id>          one job
//	queue:<name>      jobs of one queue
//	schedule:<key>    one recurring schedule
const (
	TopicFirehose  = "firehose"
	TopicJobs      = "jobs"
	TopicSchedules = "schedules"
)

const (
	kindJob      = "job"
	kindQueue    = "queue"
	kindSchedule = "schedule"
)

func JobTopic(jobID string) string       { return kindJob + ":" + jobID }
func QueueTopic(queue string) string     { return kindQueue + ":" + queue }
func ScheduleTopic(jobKey string) string { return kindSchedule + ":" + jobKey }

// ValidateTopic rejects names that no event is ever published on.
func ValidateTopic(topic string) error {
	switch topic {
	case TopicFirehose, TopicJobs, TopicSchedules:
		return nil
	}
	kind, entity, found := strings.Cut(topic, ":")
	switch {
	case !found || entity == "":
		return fmt.Errorf("stream: malformed topic %q", topic)
	case kind != kindJob && kind != kindQueue && kind != kindSchedule:
		return fmt.Errorf("stream: unknown topic kind %q", kind)
	}
	return nil
}

// topicsOf lists the topics evt is published on.
func topicsOf(evt *Event) []string {
	family := TopicSchedules
	if strings.HasPrefix(string(evt.Type), "job.") {
		family = TopicJobs
	}
	out := []string{TopicFirehose, family}
	if evt.Topic != "" {
		out = append(out, evt.Topic)
	}
	if evt.Queue != "" {
		out = append(out, QueueTopic(evt.Queue))
	}
	return out
}

// router indexes subscriptions both ways so a subscriber can be dropped
// without scanning every topic.
type router struct {
	mu      sync.RWMutex
	members map[string]map[*Subscriber]struct{}
	joined  map[*Subscriber]map[string]struct{}
}

func newRouter() *router {
	return &router{
		members: make(map[string]map[*Subscriber]struct{}),
		joined:  make(map[*Subscriber]map[string]struct{}),
	}
}

func (r *router) join(sub *Subscriber, topics ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range topics {
		if r.members[t] == nil {
			r.members[t] = make(map[*Subscriber]struct{})
		}
		r.members[t][sub] = struct{}{}
		if r.joined[sub] == nil {
			r.joined[sub] = make(map[string]struct{})
		}
		r.joined[sub][t] = struct{}{}
	}
}

// leave removes sub from topics, or from all of its topics when none are
// given.
func (r *router) leave(sub *Subscriber, topics ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(topics) == 0 {
		for t := range r.joined[sub] {
			topics = append(topics, t)
		}
	}
	for _, t := range topics {
		delete(r.members[t], sub)
		if len(r.members[t]) == 0 {
			delete(r.members, t)
		}
		delete(r.joined[sub], t)
	}
	if len(r.joined[sub]) == 0 {
		delete(r.joined, sub)
	}
}

// fanout offers evt once to each subscriber of any of topics.
func (r *router) fanout(topics []string, evt *Event) (delivered, filtered, dropped int) {
	r.mu.RLock()
	targets := make(map[*Subscriber]struct{})
	for _, t := range topics {
		for sub := range r.members[t] {
			targets[sub] = struct{}{}
		}
	}
	r.mu.RUnlock()

	for sub := range targets {
		switch sub.offer(evt) {
		case accepted:
			delivered++
		case skipped:
			filtered++
		case refused:
			dropped++
		}
	}
	return delivered, filtered, dropped
}

func (r *router) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
