package conversation

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/roach88/comanda/internal/catalog"
	"github.com/roach88/comanda/internal/session"
)

// Intent is what a customer message means in the current state.
type Intent int

const (
	Unrecognized Intent = iota
	NewOrder
	Help
	Finalize
	CancelLast
	ShowDrinks
	Greeting
	Back
	Confirm
	Decline
	PayCash
	PayPix
	PayCard
	Delivery
	Pickup
)

var intentNames = [...]string{
	Unrecognized: "unrecognized",
	NewOrder:     "new-order",
	Help:         "help",
	Finalize:     "finalize",
	CancelLast:   "cancel-last",
	ShowDrinks:   "show-drinks",
	Greeting:     "greeting",
	Back:         "back",
	Confirm:      "confirm",
	Decline:      "decline",
	PayCash:      "pay-cash",
	PayPix:       "pay-pix",
	PayCard:      "pay-card",
	Delivery:     "delivery",
	Pickup:       "pickup",
}

func (i Intent) String() string {
	if i < 0 || int(i) >= len(intentNames) {
		return "intent(" + strconv.Itoa(int(i)) + ")"
	}
	return intentNames[i]
}

// vocabulary maps folded phrases to intents. With words set, any single
// word of the message may match, so "cartao de credito" is PayCard;
// otherwise only the whole message matches.
type vocabulary struct {
	phrases map[string]Intent
	words   bool
}

func vocab(words bool, groups map[Intent][]string) vocabulary {
	v := vocabulary{phrases: make(map[string]Intent), words: words}
	for intent, phrases := range groups {
		for _, p := range phrases {
			v.phrases[catalog.Fold(p)] = intent
		}
	}
	return v
}

func (v vocabulary) match(folded string) Intent {
	if folded == "" {
		return Unrecognized
	}
	if intent, ok := v.phrases[folded]; ok {
		return intent
	}
	if v.words {
		for _, w := range strings.Fields(folded) {
			if intent, ok := v.phrases[w]; ok {
				return intent
			}
		}
	}
	return Unrecognized
}

var (
	backWords    = []string{"voltar", "volta", "v"}
	confirmWords = []string{"s", "sim", "confirmar", "confirmo", "confirma", "ok", "isso", "correto", "certo", "pode ser", "yes"}
	declineWords = []string{"n", "nao", "não", "nada", "nenhuma", "nenhum", "sem", "sem observacao", "sem troco", "nao preciso", "no"}
	newWords     = []string{"novo", "novo pedido", "reiniciar", "pedir"}
	greetWords   = []string{
		"oi", "olá", "ola", "hello", "hi", "bom dia", "boa tarde", "boa noite",
		"cardapio", "cardápio", "menu", "começar", "iniciar", "start",
	}

	globalVocab = vocab(false, map[Intent][]string{
		NewOrder:   newWords,
		Help:       {"ajuda", "socorro", "help", "atendente"},
		Finalize:   {"finalizar", "f", "fechar pedido"},
		CancelLast: {"c", "cancelar"},
		ShowDrinks: {"bebida", "beber", "bebidas", "b"},
		Greeting:   greetWords,
	})
	drinkVocab = vocab(false, map[Intent][]string{
		Back: backWords,
	})
	deliveryVocab = vocab(true, map[Intent][]string{
		Delivery: {"1", "entrega", "entregar", "delivery"},
		Pickup:   {"2", "retirada", "retirar", "buscar", "balcao"},
		Back:     backWords,
	})
	addressVocab = vocab(false, map[Intent][]string{
		Confirm: confirmWords,
		Decline: declineWords,
		Back:    backWords,
	})
	noteVocab = vocab(false, map[Intent][]string{
		Decline: declineWords,
		Back:    backWords,
	})
	paymentVocab = vocab(true, map[Intent][]string{
		PayCash: {"1", "dinheiro", "especie"},
		PayPix:  {"2", "pix"},
		PayCard: {"3", "cartão", "cartao", "debito", "débito", "credito", "crédito"},
		Back:    {"voltar", "volta"},
	})
	changeVocab = vocab(false, map[Intent][]string{
		Decline: declineWords,
		Back:    backWords,
	})
	supportVocab = vocab(false, map[Intent][]string{
		Back:     backWords,
		Greeting: greetWords,
	})
	terminalVocab = vocab(false, map[Intent][]string{
		NewOrder: newWords,
	})
)

// vocabularies holds the words each state understands. States not listed
// treat every message as free text.
var vocabularies = map[session.State]vocabulary{
	session.StateInitial:                  globalVocab,
	session.StateChoosingDrink:            drinkVocab,
	session.StateChoosingDeliveryOrPickup: deliveryVocab,
	session.StateCollectingAddress:        addressVocab,
	session.StateAwaitingConfirmationNote: noteVocab,
	session.StateChoosingPayment:          paymentVocab,
	session.StateAwaitingChangeAmount:     changeVocab,
	session.StateSupport:                  supportVocab,
	session.StateFinalized:                terminalVocab,
	session.StateDispatched:               terminalVocab,
}

// Classify returns the intent of text in state. Matching ignores case and
// accents.
func Classify(state session.State, text string) Intent {
	v, ok := vocabularies[state]
	if !ok {
		return Unrecognized
	}
	return v.match(catalog.Fold(text))
}

var quantityPrefix = regexp.MustCompile(`^(\d{1,3})\s*[xX]?\s+(\S.*)$`)

// parseQuantity splits a leading quantity off an item request:
// "2 x-burger" and "2x x-burger" order two. Without a prefix the quantity is 1.
func parseQuantity(text string) (int, string) {
	m := quantityPrefix.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return 1, strings.TrimSpace(text)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 1, strings.TrimSpace(text)
	}
	return n, m[2]
}

// parseAmount reads a money amount such as "50", "R$ 50,00" or "1.234,50".
func parseAmount(text string) (decimal.Decimal, bool) {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.TrimPrefix(s, "r$")
	s = strings.ReplaceAll(s, " ", "")
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}
