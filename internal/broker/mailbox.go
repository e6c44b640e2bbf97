package broker

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/42ity/fty-alert-engine-sub000/internal/opsnotify"
	"github.com/42ity/fty-alert-engine-sub000/internal/rule"
)

// mailboxRequest is one rfc-evaluator-rules RPC frame: [command, args...].
type mailboxRequest struct {
	Command string            `json:"command"`
	Args    []json.RawMessage `json:"args"`
}

// mailboxReply begins with "OK"/"ERROR" per the protocol; Body carries
// whatever payload the command produces.
type mailboxReply struct {
	Status string      `json:"status"`
	Code   string      `json:"code,omitempty"`
	Body   interface{} `json:"body,omitempty"`
}

func okReply(body interface{}) mailboxReply {
	return mailboxReply{Status: "OK", Body: body}
}

func errReply(code string) mailboxReply {
	return mailboxReply{Status: "ERROR", Code: code}
}

func argString(args []json.RawMessage, i int) (string, bool) {
	if i >= len(args) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(args[i], &s); err != nil {
		return "", false
	}
	return s, true
}

// postMailbox dispatches one rfc-evaluator-rules command: LIST, GET, ADD,
// TOUCH, DELETE, DELETE_ELEMENT.
func (b *Broker) postMailbox(c *fiber.Ctx) error {
	var req mailboxRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errReply("BAD_JSON"))
	}

	correlationID := c.Get("X-Correlation-Id")
	actor := c.Get("X-Mailbox-Sender")

	switch req.Command {
	case "LIST":
		return c.JSON(b.mailboxList(req.Args))
	case "GET":
		return c.JSON(b.mailboxGet(req.Args))
	case "ADD":
		return c.JSON(b.mailboxAdd(req.Args, correlationID, actor))
	case "TOUCH":
		return c.JSON(b.mailboxTouch(req.Args, correlationID, actor))
	case "DELETE":
		return c.JSON(b.mailboxDelete(req.Args, correlationID, actor))
	case "DELETE_ELEMENT":
		return c.JSON(b.mailboxDeleteElement(req.Args, correlationID, actor))
	default:
		return c.Status(fiber.StatusBadRequest).JSON(errReply("BAD_JSON"))
	}
}

func (b *Broker) mailboxList(args []json.RawMessage) mailboxReply {
	typeFilter, _ := argString(args, 0)
	if typeFilter == "" {
		typeFilter = "all"
	}
	ruleClass, _ := argString(args, 1)

	rules, err := b.catalog.List(typeFilter)
	if err != nil {
		if errors.Is(err, rule.ErrInvalidType) {
			return errReply("INVALID_TYPE")
		}
		return errReply("Internal error")
	}

	var matched []*rule.Rule
	for _, r := range rules {
		if ruleClass != "" && r.Class != ruleClass {
			continue
		}
		matched = append(matched, r)
	}

	return okReply(fiber.Map{
		"type":       typeFilter,
		"rule_class": ruleClass,
		"rules":      matched,
	})
}

func (b *Broker) mailboxGet(args []json.RawMessage) mailboxReply {
	name, ok := argString(args, 0)
	if !ok {
		return errReply("NOT_FOUND")
	}
	r, err := b.catalog.Get(name)
	if err != nil {
		return errReply("NOT_FOUND")
	}
	return okReply(r)
}

func (b *Broker) mailboxAdd(args []json.RawMessage, correlationID, actor string) mailboxReply {
	doc, ok := argString(args, 0)
	if !ok {
		return errReply("BAD_JSON")
	}
	oldName, hasOld := argString(args, 1)

	var (
		r   *rule.Rule
		err error
	)
	action := "rule.add"
	if hasOld && oldName != "" {
		action = "rule.update"
		var oldRule *rule.Rule
		oldRule, r, err = b.catalog.Update([]byte(doc), oldName)
		if err == nil && oldRule != nil {
			b.engine.ResolveRule(oldRule)
		}
	} else {
		r, err = b.catalog.Add([]byte(doc))
	}

	if err != nil {
		code := mailboxErrorCode(err)
		b.auditRecord(correlationID, action+".failed", actor, oldName, err.Error())
		return errReply(code)
	}

	if b.auditStore != nil {
		subject := r.Name
		b.auditStore.Record(correlationID, action, actor, subject, "")
	}
	if b.engine != nil {
		b.engine.Touch(r.Name)
	}
	return okReply(r)
}

func (b *Broker) mailboxTouch(args []json.RawMessage, correlationID, actor string) mailboxReply {
	name, ok := argString(args, 0)
	if !ok {
		return errReply("NOT_FOUND")
	}
	if err := b.engine.Touch(name); err != nil {
		return errReply("NOT_FOUND")
	}
	if b.metrics != nil {
		b.metrics.CatalogMutations.WithLabelValues("touch").Inc()
	}
	b.auditRecord(correlationID, "rule.touch", actor, name, "")
	return okReply(nil)
}

func (b *Broker) mailboxDelete(args []json.RawMessage, correlationID, actor string) mailboxReply {
	name, ok := argString(args, 0)
	if !ok {
		return errReply("NO_MATCH")
	}
	r, err := b.catalog.Delete(name)
	if err != nil {
		return errReply("NO_MATCH")
	}
	b.engine.ResolveRule(r)
	b.auditRecord(correlationID, "rule.delete", actor, name, "")
	return okReply(fiber.Map{"name": r.Name})
}

func (b *Broker) mailboxDeleteElement(args []json.RawMessage, correlationID, actor string) mailboxReply {
	assetID, ok := argString(args, 0)
	if !ok {
		return errReply("NO_MATCH")
	}
	removed, err := b.catalog.DeleteByElement(assetID)
	if err != nil {
		return errReply("NO_MATCH")
	}
	names := make([]string, 0, len(removed))
	for _, r := range removed {
		b.engine.ResolveRule(r)
		names = append(names, r.Name)
	}
	b.auditRecord(correlationID, "rule.delete_element", actor, assetID, "")
	return okReply(fiber.Map{"names": names})
}

func (b *Broker) auditRecord(correlationID, action, actor, subject, detail string) {
	if b.auditStore == nil {
		return
	}
	if err := b.auditStore.Record(correlationID, action, actor, subject, detail); err != nil {
		b.reportFault("audit", opsnotify.SeverityWarning, "audit record failed", err.Error())
	}
}

func mailboxErrorCode(err error) string {
	switch {
	case errors.Is(err, rule.ErrAlreadyExists):
		return "ALREADY_EXISTS"
	case errors.Is(err, rule.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, rule.ErrBadLua):
		return "BAD_LUA"
	case errors.Is(err, rule.ErrBadJSON):
		return "BAD_JSON"
	default:
		return "Internal error"
	}
}
