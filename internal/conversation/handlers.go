package conversation

import (
	"strconv"

	"github.com/roach88/comanda/internal/messages"
	"github.com/roach88/comanda/internal/session"
)

func (m *Machine) handleInitial(t *turn) error {
	switch t.intent {
	case NewOrder:
		t.tx.Reset()
		t.say(t.texts.Get(messages.KeyCartReset), t.texts.Get(messages.KeyMenuPrompt))
		return nil

	case Help:
		t.reply.Escalate = true
		t.sayKey(messages.KeyHelp)
		return t.tx.SetState(session.StateSupport)

	case Finalize:
		return m.beginCheckout(t)

	case CancelLast:
		if t.tx.Snapshot().Empty() {
			t.say(t.texts.Get(messages.KeyCartAlreadyEmpty), t.texts.Get(messages.KeyMenuPrompt))
			return nil
		}
		if _, err := t.tx.RemoveLast(); err != nil {
			return err
		}
		if t.tx.Snapshot().Empty() {
			t.say(t.texts.Get(messages.KeyCartEmpty), t.texts.Get(messages.KeyMenuPrompt))
			return nil
		}
		t.cartAndPrompt()
		return nil

	case ShowDrinks:
		drinks, err := m.catalog.Drinks(t.ctx, t.tenantID())
		if err != nil {
			t.retry("list drinks", err)
			return nil
		}
		t.say(messages.DrinkList(t.texts, drinks))
		if len(drinks) == 0 {
			return nil
		}
		return t.tx.SetState(session.StateChoosingDrink)

	case Greeting:
		m.sendMenu(t)
		return nil
	}

	if t.text == "" {
		t.sayKey(messages.KeyMenuPrompt)
		return nil
	}
	added, ok := m.addFromText(t)
	if !ok {
		return nil
	}
	if added {
		t.cartAndPrompt()
		return nil
	}
	if !t.tx.Snapshot().MenuShown {
		m.sendMenu(t)
		return nil
	}
	t.say(t.texts.Get(messages.KeyItemNotFound), t.texts.Get(messages.KeyMenuPrompt))
	return nil
}

// addFromText offers the message to the item matcher. A leading number is
// the quantity. ok is false when a collaborator failed and the retry prompt
// was already sent.
func (m *Machine) addFromText(t *turn) (added, ok bool) {
	qty, ref := parseQuantity(t.text)
	id, found, err := m.catalog.ResolveItemID(t.ctx, t.tenantID(), ref)
	if err != nil {
		t.retry("resolve item", err)
		return false, false
	}
	if !found {
		return false, true
	}
	if _, err := t.tx.AddItem(id, qty, "", "", ""); err != nil {
		if session.IsItemNotFound(err) {
			return false, true
		}
		t.retry("add item", err)
		return false, false
	}
	return true, true
}

func (m *Machine) sendMenu(t *turn) {
	items, err := m.catalog.Menu(t.ctx, t.tenantID())
	if err != nil {
		t.retry("load menu", err)
		return
	}
	for _, ref := range m.menuMedia(t.tenantID()) {
		t.media(ref)
	}
	t.say(messages.Menu(t.texts, items))
	t.tx.MarkMenuShown()
}

func (m *Machine) handleChoosingDrink(t *turn) error {
	if t.intent == Back {
		t.cartAndPrompt()
		return t.tx.SetState(session.StateInitial)
	}

	drinks, err := m.catalog.Drinks(t.ctx, t.tenantID())
	if err != nil {
		t.retry("list drinks", err)
		return nil
	}

	if n, err := strconv.Atoi(t.text); err == nil && n >= 1 && n <= len(drinks) {
		d := drinks[n-1]
		if _, err := t.tx.AddItem(d.ID, 1, "", "", ""); err != nil {
			t.retry("add drink", err)
			return nil
		}
		t.cartAndPrompt()
		return t.tx.SetState(session.StateInitial)
	}

	if t.text != "" {
		added, ok := m.addFromText(t)
		if !ok {
			return nil
		}
		if added {
			t.cartAndPrompt()
			return t.tx.SetState(session.StateInitial)
		}
	}
	t.sayKey(messages.KeyInvalidDrink)
	return nil
}

func (m *Machine) handleSupport(t *turn) error {
	switch t.intent {
	case Back:
		t.cartAndPrompt()
		return t.tx.SetState(session.StateInitial)
	case Greeting:
		m.sendMenu(t)
		return t.tx.SetState(session.StateInitial)
	}
	t.reply.Escalate = true
	t.sayKey(messages.KeySupportAck)
	return nil
}

func (m *Machine) handleTerminal(t *turn) error {
	if t.intent == NewOrder {
		t.tx.Reset()
		t.say(t.texts.Get(messages.KeyCartReset), t.texts.Get(messages.KeyMenuPrompt))
		return nil
	}
	t.sayKey(messages.KeyAlreadyPlaced)
	return nil
}
