// Package messages holds the customer-facing reply texts and renders carts
// and orders as chat text.
//
// Every tenant starts from the built-in Portuguese defaults. Config can
// override any key per tenant, and operators can override keys at runtime
// through the tenant's settings table under "msg.<key>".
package messages

import (
	"fmt"
	"sort"
)

// Key names one reply text.
type Key string

const (
	KeyWelcome          Key = "welcome"
	KeyMenuPrompt       Key = "menu_prompt"
	KeyHelp             Key = "help"
	KeySupportAck       Key = "support_ack"
	KeyCartReset        Key = "cart_reset"
	KeyCartEmpty        Key = "cart_empty"
	KeyCartAlreadyEmpty Key = "cart_already_empty"
	KeyItemNotFound     Key = "item_not_found"
	KeyDrinksHeader     Key = "drinks_header"
	KeyNoDrinks         Key = "no_drinks"
	KeyInvalidDrink     Key = "invalid_drink"
	KeyDeliveryOrPickup Key = "delivery_or_pickup"
	KeyAskAddress       Key = "ask_address"
	KeyAddressConfirm   Key = "address_confirm"
	KeyAddressHint      Key = "address_hint"
	KeyAskNote          Key = "ask_note"
	KeyAskName          Key = "ask_name"
	KeyPaymentMenu      Key = "payment_menu"
	KeyAskChange        Key = "ask_change"
	KeyChangeTooLow     Key = "change_too_low"
	KeyChangeInvalid    Key = "change_invalid"
	KeyOrderTaken       Key = "order_taken"
	KeyPixKey           Key = "pix_key"
	KeyAlreadyPlaced    Key = "already_placed"
	KeyUnrecognized     Key = "unrecognized"
	KeyRetry            Key = "retry"
	KeyFollowup         Key = "followup"
	KeyDispatched       Key = "dispatched"
)

var defaults = map[Key]string{
	KeyWelcome:          "Olá! Seja bem-vindo! 🍔\nConfira nosso cardápio:",
	KeyMenuPrompt:       "Digite o nome do lanche para adicionar ao pedido.\n*B* para bebidas\n*C* para cancelar o último item\n*F* para finalizar o pedido\n*Ajuda* para falar com um atendente",
	KeyHelp:             "Um atendente foi avisado e vai falar com você em instantes.\nDigite *Voltar* para retornar ao cardápio.",
	KeySupportAck:       "Sua mensagem foi encaminhada ao atendente.\nDigite *Voltar* para retornar ao cardápio.",
	KeyCartReset:        "Seu carrinho foi reiniciado.",
	KeyCartEmpty:        "Seu carrinho está vazio.",
	KeyCartAlreadyEmpty: "Seu carrinho já está vazio.",
	KeyItemNotFound:     "Não encontrei esse item no cardápio.",
	KeyDrinksHeader:     "🥤 *BEBIDAS*\nDigite o número ou o nome da bebida:",
	KeyNoDrinks:         "No momento não temos bebidas cadastradas.",
	KeyInvalidDrink:     "Opção inválida. Digite o nome da bebida desejada.",
	KeyDeliveryOrPickup: "Como prefere receber seu pedido?\n*1* Entrega\n*2* Retirada no local",
	KeyAskAddress:       "Por favor, envie seu endereço completo (rua, número e bairro) ou sua *LOCALIZAÇÃO*.",
	KeyAddressConfirm:   "Confirme o endereço de entrega:",
	KeyAddressHint:      "Digite *S* para confirmar ou envie outro endereço.",
	KeyAskNote:          "Alguma observação para o pedido? (ex: sem cebola)\nDigite *N* se não houver.",
	KeyAskName:          "Para finalizar, qual é o seu nome?",
	KeyPaymentMenu:      "Qual a forma de pagamento?\n*1* Dinheiro\n*2* Pix\n*3* Cartão",
	KeyAskChange:        "Troco para quanto? Digite o valor ou *N* se não precisar de troco.",
	KeyChangeTooLow:     "O valor informado é menor que o total do pedido.",
	KeyChangeInvalid:    "Não entendi o valor. Digite apenas números, por exemplo: 50",
	KeyOrderTaken:       "seu pedido foi anotado e já está sendo preparado! 🍔",
	KeyPixKey:           "",
	KeyAlreadyPlaced:    "Você já finalizou seu pedido, pode pedir novamente:\nDigite *Novo*",
	KeyUnrecognized:     "Opção não reconhecida.",
	KeyRetry:            "Desculpe, tivemos um problema. Por favor, tente novamente.",
	KeyFollowup:         "Oi! Seu pedido ainda está no carrinho. 😊\nDigite *F* para finalizar ou *Novo* para recomeçar.",
	KeyDispatched:       "Seu pedido saiu para entrega! 🛵",
}

// Keys returns every known key in sorted order.
func Keys() []Key {
	keys := make([]Key, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Known reports whether k names a reply text.
func (k Key) Known() bool {
	_, ok := defaults[k]
	return ok
}

// Set is an immutable collection of reply texts.
type Set struct {
	texts map[Key]string
}

// Defaults returns the built-in texts.
func Defaults() *Set {
	texts := make(map[Key]string, len(defaults))
	for k, v := range defaults {
		texts[k] = v
	}
	return &Set{texts: texts}
}

// WithOverrides returns a copy of s with the given keys replaced.
// Returns an error naming the first unknown key.
func (s *Set) WithOverrides(overrides map[string]string) (*Set, error) {
	texts := make(map[Key]string, len(s.texts))
	for k, v := range s.texts {
		texts[k] = v
	}
	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		k := Key(name)
		if !k.Known() {
			return nil, fmt.Errorf("unknown message key %q", name)
		}
		texts[k] = overrides[name]
	}
	return &Set{texts: texts}, nil
}

// Get returns the text for k, or "" for an unknown key.
func (s *Set) Get(k Key) string {
	return s.texts[k]
}
