package main

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	maxChatInput = 500
)

// Message is one line in a chat session.
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	SentAt  time.Time `json:"sent_at"`
}

// chatRule matches when the input contains one of Keywords as a substring
// or one of Words as a whole word.
type chatRule struct {
	Name     string
	Keywords []string
	Words    []string
	Reply    string
}

func (r chatRule) matches(q string, words map[string]bool) bool {
	for _, kw := range r.Keywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	for _, w := range r.Words {
		if words[w] {
			return true
		}
	}
	return false
}

// ChatBot answers questions about the site owner from a fixed rule list.
// The first matching rule wins.
type ChatBot struct {
	greeting     string
	defaultReply string
	rules        []chatRule
}

func NewChatBot(site *Site) *ChatBot {
	p := site.Profile

	titles := make([]string, 0, len(site.Projects))
	for _, proj := range site.Projects {
		titles = append(titles, proj.Title)
	}
	categories := make([]string, 0, len(site.Categories))
	for _, c := range site.Categories {
		categories = append(categories, c.Name)
	}

	return &ChatBot{
		greeting: fmt.Sprintf("Hi! I'm %s's assistant. Ask me about skills, projects, experience or how to get in touch.", p.Name),
		defaultReply: "I'm not sure about that one. Try asking about skills, projects, education, the resume, " +
			"or use the contact form and " + p.Name + " will reply personally.",
		rules: []chatRule{
			{
				Name:     "skills",
				Keywords: []string{"skill", "stack", "good at", "strength"},
				Reply: fmt.Sprintf("%s's strongest skills are %s. The skills section groups them into %s.",
					p.Name, joinList(site.TopSkills(4)), joinList(categories)),
			},
			{
				Name:     "tools",
				Keywords: []string{"python", "sql", "tableau", "excel", "power bi", "tools", "software"},
				Reply:    "Day to day that means SQL for pulling data, Python and pandas for analysis, and Tableau or Power BI for dashboards. Excel still does a lot of heavy lifting too.",
			},
			{
				Name:     "projects",
				Keywords: []string{"project", "portfolio", "work sample", "built", "case stud"},
				Reply:    fmt.Sprintf("Featured projects: %s. Click any card on the home page for the full write-up.", joinList(titles)),
			},
			{
				Name:     "experience",
				Keywords: []string{"experience", "job", "work history", "worked", "career"},
				Reply:    fmt.Sprintf("%s works as a %s, building reporting pipelines and dashboards and answering ad-hoc business questions with data.", p.Name, strings.ToLower(p.Role)),
			},
			{
				Name:     "education",
				Keywords: []string{"education", "degree", "study", "studied", "university", "certif"},
				Reply:    "The resume lists degrees and certifications. There is a download link in the hero section.",
			},
			{
				Name:     "resume",
				Keywords: []string{"resume", "cv", "curriculum"},
				Reply:    fmt.Sprintf("You can download the resume here: %s", p.ResumePath),
			},
			{
				Name:     "contact",
				Keywords: []string{"contact", "email", "reach", "hire", "available", "get in touch"},
				Reply:    fmt.Sprintf("The contact form at the bottom of the page is the quickest way, or email %s directly.", p.Email),
			},
			{
				Name:     "location",
				Keywords: []string{"where", "location", "based", "remote", "relocat"},
				Reply:    fmt.Sprintf("%s is based in %s and open to remote work.", p.Name, p.Location),
			},
			{
				Name:     "about",
				Keywords: []string{"who are you", "about", "yourself", "hobby", "hobbies"},
				Reply:    strings.Join(strings.Fields(p.Tagline), " ") + " Scroll to the about section for the longer story.",
			},
			{
				Name:     "thanks",
				Keywords: []string{"thank", "thx", "cheers"},
				Reply:    "You're welcome! Anything else?",
			},
			// Greetings come after the topics so "hey, what are your skills"
			// gets the skills answer.
			{
				Name:     "greeting",
				Keywords: []string{"good morning", "good afternoon"},
				Words:    []string{"hi", "hey", "hello", "howdy", "hiya"},
				Reply:    fmt.Sprintf("Hello! I can tell you about %s's work as a %s. What would you like to know?", p.Name, strings.ToLower(p.Role)),
			},
		},
	}
}

// Reply returns the answer for input and the name of the rule that
// produced it. The default reply has an empty rule name.
func (b *ChatBot) Reply(input string) (reply, rule string) {
	q := strings.ToLower(strings.TrimSpace(input))
	if q == "" {
		return b.defaultReply, ""
	}
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(q, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		words[w] = true
	}
	for _, r := range b.rules {
		if r.matches(q, words) {
			return r.Reply, r.Name
		}
	}
	return b.defaultReply, ""
}

func (b *ChatBot) Greeting() string {
	return b.greeting
}

// ChatSession is the widget state for one browser session.
type ChatSession struct {
	ID       string
	Open     bool
	Messages []Message
	LastSeen time.Time
}

// ChatStore keeps chat sessions in memory, keyed by the session cookie.
type ChatStore struct {
	mu       sync.Mutex
	bot      *ChatBot
	sessions map[string]*ChatSession
	now      func() time.Time
}

func NewChatStore(bot *ChatBot) *ChatStore {
	return &ChatStore{
		bot:      bot,
		sessions: make(map[string]*ChatSession),
		now:      time.Now,
	}
}

// Get returns a copy of the session for id, creating it if needed. A blank
// or unknown id gets a fresh session with a new id.
func (s *ChatStore) Get(id string) ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(id).snapshot()
}

func (s *ChatStore) Toggle(id string) ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.lookup(id)
	sess.Open = !sess.Open
	return sess.snapshot()
}

// Send appends the user's text and the bot's reply. Blank text leaves the
// session untouched and returns an empty rule and reply.
func (s *ChatStore) Send(id, text string) (sess ChatSession, reply, rule string) {
	text = truncateRunes(strings.TrimSpace(text), maxChatInput)

	s.mu.Lock()
	defer s.mu.Unlock()
	cs := s.lookup(id)
	if text == "" {
		return cs.snapshot(), "", ""
	}

	reply, rule = s.bot.Reply(text)
	now := s.now()
	cs.Open = true
	cs.Messages = append(cs.Messages,
		Message{Role: RoleUser, Content: text, SentAt: now},
		Message{Role: RoleAssistant, Content: reply, SentAt: now},
	)
	return cs.snapshot(), reply, rule
}

// Reset clears the history back to the greeting.
func (s *ChatStore) Reset(id string) ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := s.lookup(id)
	cs.Messages = []Message{s.greeting()}
	return cs.snapshot()
}

// Sweep drops sessions idle for longer than ttl and returns how many went.
func (s *ChatStore) Sweep(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-ttl)
	removed := 0
	for id, cs := range s.sessions {
		if cs.LastSeen.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

func (s *ChatStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// lookup must be called with mu held.
func (s *ChatStore) lookup(id string) *ChatSession {
	if cs, ok := s.sessions[id]; ok && id != "" {
		cs.LastSeen = s.now()
		return cs
	}
	cs := &ChatSession{
		ID:       uuid.NewString(),
		Messages: []Message{s.greeting()},
		LastSeen: s.now(),
	}
	s.sessions[cs.ID] = cs
	return cs
}

func (s *ChatStore) greeting() Message {
	return Message{Role: RoleAssistant, Content: s.bot.Greeting(), SentAt: s.now()}
}

func (cs *ChatSession) snapshot() ChatSession {
	out := *cs
	out.Messages = append([]Message(nil), cs.Messages...)
	return out
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

func joinList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}
