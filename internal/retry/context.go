package retry

// MaxHistory bounds the number of entries a Context keeps.
const MaxHistory = 8

// HistoryEntry is a compact record of one rejected attempt
type HistoryEntry struct {
	Attempt  int      `json:"attempt"`
	Category Category `json:"category"`
	Message  string   `json:"message"`
}

// Context accumulates what one candidate's retry loop has tried. It belongs
// to a single loop and must not be shared between candidates.
type Context struct {
	SQL             string
	Dialect         string
	Question        string
	RetryCount      int
	ErrorMessage    string
	FailedTests     []string
	EvidenceSummary string
	History         []HistoryEntry

	// LastSQL and LastError record the most recent validation attempt,
	// successful or not.
	LastSQL   string
	LastError string
}

// NewContext starts a retry context for a question
func NewContext(question, dialect string) *Context {
	return &Context{Question: question, Dialect: dialect}
}

// Record stores the SQL and error of the latest attempt. A nil error clears
// the stored error.
func (c *Context) Record(sql string, err error) {
	c.LastSQL = sql
	if err != nil {
		c.LastError = err.Error()
	} else {
		c.LastError = ""
	}
}

// AddHistory appends an entry, dropping the oldest past MaxHistory.
func (c *Context) AddHistory(e HistoryEntry) {
	c.History = append(c.History, e)
	if over := len(c.History) - MaxHistory; over > 0 {
		c.History = append(c.History[:0:0], c.History[over:]...)
	}
}

// Fail records a rejection: it bumps the retry count, stores the message
// and failed tests, and appends a truncated history entry.
func (c *Context) Fail(sql string, re *Error) {
	c.SQL = sql
	c.RetryCount++
	c.ErrorMessage = re.Message
	if re.Category == CategoryEvidenceMismatch || re.Category == CategoryValidationFailed {
		c.FailedTests = re.Hints
	}
	c.AddHistory(HistoryEntry{
		Attempt:  c.RetryCount,
		Category: re.Category,
		Message:  truncate(re.Message, historyMessageLimit),
	})
}

const historyMessageLimit = 160

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
