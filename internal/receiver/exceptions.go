package receiver

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
)

// ExceptionLists holds the operator-maintained plain-text lists that gate
// admission: callsigns that have already been rejected once (and so are
// never re-validated), callsigns ft8op must never reply to even if
// addressed, the set of pre-validated callsigns, and the per-country
// priority/VIP weighting. Each is RWMutex-guarded and reloadable, the
// pattern the fleet uses for its country-ban list.
type ExceptionLists struct {
	mu sync.RWMutex

	callsignExcPath string
	callsignExc     map[string]bool

	receiverExcPath string
	receiverExc     map[string]bool

	validCallsignPath string
	validCallsign     map[string]bool

	priorityPath string
	priority     map[string]float64

	vipPath string
	vip     map[string]bool
}

// NewExceptionLists loads every list from disk. A missing file is treated
// as an empty list rather than an error -- operators are not required to
// maintain every file.
func NewExceptionLists(callsignExc, receiverExc, validCallsign, priority, vip string) (*ExceptionLists, error) {
	e := &ExceptionLists{
		callsignExcPath:   callsignExc,
		receiverExcPath:   receiverExc,
		validCallsignPath: validCallsign,
		priorityPath:      priority,
		vipPath:           vip,
	}
	if err := e.Reload(); err != nil {
		return nil, err
	}
	return e, nil
}

func readLines(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("receiver: open %s: %w", path, err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

// Reload re-reads every backing file. Called at receiver startup and may
// also be invoked on every tx-end sweep, matching the Python original's
// per-cycle reload of its exception files.
func (e *ExceptionLists) Reload() error {
	callsignExc, err := readLines(e.callsignExcPath)
	if err != nil {
		return err
	}
	receiverExc, err := readLines(e.receiverExcPath)
	if err != nil {
		return err
	}
	validCallsign, err := readLines(e.validCallsignPath)
	if err != nil {
		return err
	}
	for i, line := range validCallsign {
		validCallsign[i] = strings.TrimSpace(strings.SplitN(line, ",", 2)[0])
	}
	priorityList, err := readLines(e.priorityPath)
	if err != nil {
		return err
	}
	vipList, err := readLines(e.vipPath)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.callsignExc = toSet(callsignExc)
	e.receiverExc = toSet(receiverExc)
	e.validCallsign = toSet(validCallsign)
	e.vip = toSet(vipList)

	// priority_country weighting: 0.5 - i/(2*len+1) by list position, the
	// earliest-listed country carrying the highest bonus.
	e.priority = make(map[string]float64, len(priorityList))
	n := len(priorityList)
	for i, country := range priorityList {
		e.priority[country] = 0.5 - float64(i)/float64(2*n+1)
	}

	return nil
}

func toSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[strings.ToUpper(it)] = true
	}
	return m
}

func (e *ExceptionLists) IsCallsignExcepted(callsign string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.callsignExc[strings.ToUpper(callsign)]
}

func (e *ExceptionLists) IsReceiverExcepted(callsign string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.receiverExc[strings.ToUpper(callsign)]
}

func (e *ExceptionLists) IsPreValidated(callsign string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.validCallsign[strings.ToUpper(callsign)]
}

func (e *ExceptionLists) PriorityBonus(country string) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.priority[country]
}

func (e *ExceptionLists) IsVIP(country string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.vip[strings.ToUpper(country)]
}

// AddCallsignException appends callsign to the rejected-callsign list and
// persists it, mirroring validate_callsign's failure path in the Python
// original.
func (e *ExceptionLists) AddCallsignException(callsign string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	up := strings.ToUpper(callsign)
	if e.callsignExc[up] {
		return nil
	}
	e.callsignExc[up] = true
	if e.callsignExcPath == "" {
		return nil
	}
	f, err := os.OpenFile(e.callsignExcPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("receiver: persist callsign exception: %w", err)
	}
	defer f.Close()
	_, err = f.WriteString(up + "\n")
	return err
}
