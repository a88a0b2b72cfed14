package config

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

var (
	_ SecretProvider = (*EnvVarProvider)(nil)
	_ SecretProvider = (*SSMProvider)(nil)
)

func TestEnvVarProvider(t *testing.T) {
	t.Setenv("KRISHISAT_TEST_SECRET_A", "alpha")

	result, err := NewEnvVarProvider().GetParametersBatch(context.Background(),
		[]string{"KRISHISAT_TEST_SECRET_A", "KRISHISAT_TEST_SECRET_UNSET"})
	if err != nil {
		t.Fatalf("GetParametersBatch returned error: %v", err)
	}
	if len(result) != 1 || result["KRISHISAT_TEST_SECRET_A"] != "alpha" {
		t.Errorf("result = %v", result)
	}
}

type fakeSSM struct {
	calls   [][]string
	invalid []string
	err     error
}

func (f *fakeSSM) GetParameters(_ context.Context, in *ssm.GetParametersInput, _ ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
	f.calls = append(f.calls, in.Names)
	if f.err != nil {
		return nil, f.err
	}
	if !aws.ToBool(in.WithDecryption) {
		return nil, errors.New("decryption not requested")
	}
	out := &ssm.GetParametersOutput{InvalidParameters: f.invalid}
	for _, name := range in.Names {
		out.Parameters = append(out.Parameters, ssmtypes.Parameter{
			Name:  aws.String(name),
			Value: aws.String("value-of-" + name),
		})
	}
	return out, nil
}

func TestSSMProviderBatches(t *testing.T) {
	fake := &fakeSSM{}
	provider := newSSMProviderWithClient("ap-south-1", fake)

	keys := make([]string, 23)
	for i := range keys {
		keys[i] = fmt.Sprintf("/prod/krishisat/param-%02d", i)
	}

	result, err := provider.GetParametersBatch(context.Background(), keys)
	if err != nil {
		t.Fatalf("GetParametersBatch returned error: %v", err)
	}
	if len(fake.calls) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(fake.calls))
	}
	if len(fake.calls[0]) != 10 || len(fake.calls[2]) != 3 {
		t.Errorf("unexpected batch sizes: %d, %d", len(fake.calls[0]), len(fake.calls[2]))
	}
	if result[keys[22]] != "value-of-"+keys[22] {
		t.Errorf("missing resolved value for %s", keys[22])
	}
}

func TestSSMProviderEmptyKeys(t *testing.T) {
	fake := &fakeSSM{}
	result, err := newSSMProviderWithClient("ap-south-1", fake).GetParametersBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetParametersBatch returned error: %v", err)
	}
	if result == nil || len(result) != 0 || len(fake.calls) != 0 {
		t.Errorf("expected empty result and no calls, got %v / %d calls", result, len(fake.calls))
	}
}

func TestSSMProviderInvalidParameters(t *testing.T) {
	fake := &fakeSSM{invalid: []string{"/prod/krishisat/missing"}}
	_, err := newSSMProviderWithClient("ap-south-1", fake).GetParametersBatch(context.Background(), []string{"/prod/krishisat/missing"})
	if err == nil {
		t.Fatal("expected error for invalid parameters")
	}
}

func TestSSMProviderCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fake := &fakeSSM{}
	_, err := newSSMProviderWithClient("ap-south-1", fake).GetParametersBatch(ctx, []string{"/a"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(fake.calls) != 0 {
		t.Error("no SSM call should be made after cancellation")
	}
}
