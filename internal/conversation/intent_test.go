package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/comanda/internal/session"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		state session.State
		text  string
		want  Intent
	}{
		{session.StateInitial, "Novo", NewOrder},
		{session.StateInitial, "  REINICIAR ", NewOrder},
		{session.StateInitial, "ajuda", Help},
		{session.StateInitial, "F", Finalize},
		{session.StateInitial, "finalizar", Finalize},
		{session.StateInitial, "c", CancelLast},
		{session.StateInitial, "Bebidas", ShowDrinks},
		{session.StateInitial, "Olá!", Greeting},
		{session.StateInitial, "bom dia", Greeting},
		{session.StateInitial, "Cardápio", Greeting},
		{session.StateInitial, "x-burger", Unrecognized},
		{session.StateInitial, "oi quero um x-burger", Unrecognized},
		{session.StateInitial, "", Unrecognized},

		{session.StateChoosingDrink, "voltar", Back},
		{session.StateChoosingDrink, "1", Unrecognized},

		{session.StateChoosingDeliveryOrPickup, "1", Delivery},
		{session.StateChoosingDeliveryOrPickup, "quero entrega", Delivery},
		{session.StateChoosingDeliveryOrPickup, "vou retirar", Pickup},
		{session.StateChoosingDeliveryOrPickup, "2", Pickup},

		{session.StateCollectingAddress, "S", Confirm},
		{session.StateCollectingAddress, "sim", Confirm},
		{session.StateCollectingAddress, "Não", Decline},
		{session.StateCollectingAddress, "Rua Sim, 10", Unrecognized},

		{session.StateAwaitingConfirmationNote, "n", Decline},
		{session.StateAwaitingConfirmationNote, "sem cebola", Unrecognized},

		{session.StateChoosingPayment, "1", PayCash},
		{session.StateChoosingPayment, "Dinheiro", PayCash},
		{session.StateChoosingPayment, "PIX", PayPix},
		{session.StateChoosingPayment, "cartão de crédito", PayCard},
		{session.StateChoosingPayment, "debito", PayCard},
		{session.StateChoosingPayment, "voltar", Back},
		{session.StateChoosingPayment, "bitcoin", Unrecognized},

		{session.StateAwaitingChangeAmount, "sem troco", Decline},
		{session.StateAwaitingChangeAmount, "50", Unrecognized},

		{session.StateSupport, "voltar", Back},
		{session.StateSupport, "oi", Greeting},

		{session.StateFinalized, "novo", NewOrder},
		{session.StateFinalized, "pix", Unrecognized},
		{session.StateDispatched, "Novo pedido", NewOrder},

		{session.StateCollectingName, "Oi", Unrecognized},
	}
	for _, tt := range tests {
		t.Run(string(tt.state)+"/"+tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.state, tt.text))
		})
	}
}

func TestIntentString(t *testing.T) {
	assert.Equal(t, "pay-pix", PayPix.String())
	assert.Equal(t, "unrecognized", Unrecognized.String())
	assert.Equal(t, "intent(99)", Intent(99).String())
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		text    string
		wantQty int
		wantRef string
	}{
		{"x-burger", 1, "x-burger"},
		{"2 x-burger", 2, "x-burger"},
		{"2x x-burger", 2, "x-burger"},
		{"3 X salada", 3, "salada"},
		{"0 coca", 1, "0 coca"},
		{"12", 1, "12"},
		{"  1 refri ", 1, "refri"},
	}
	for _, tt := range tests {
		qty, ref := parseQuantity(tt.text)
		assert.Equal(t, tt.wantQty, qty, tt.text)
		assert.Equal(t, tt.wantRef, ref, tt.text)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"50", "50", true},
		{"R$ 50,00", "50", true},
		{"r$100", "100", true},
		{"1.234,50", "1234.5", true},
		{"20.5", "20.5", true},
		{"cinquenta", "0", false},
		{"", "0", false},
		{"-5", "0", false},
		{"0", "0", false},
	}
	for _, tt := range tests {
		got, ok := parseAmount(tt.text)
		assert.Equal(t, tt.ok, ok, tt.text)
		assert.Equal(t, tt.want, got.String(), tt.text)
	}
}
