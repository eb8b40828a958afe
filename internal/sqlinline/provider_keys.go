package sqlinline

const QSelectProviderKey = `--sql 3b0f6c52-95d4-4c0e-a0e7-51d0b2b7f1a4
select api_key
from provider_keys
where provider = $1::text;
`

// QUpsertProviderKey keeps created_at from the first insert and bumps rotated_at.
const QUpsertProviderKey = `--sql 0c7d2e8a-4f61-4a39-9d0b-6e2a8f5c9b17
insert into provider_keys (provider, api_key, set_by)
values ($1::text, $2::text, $3::text)
on conflict (provider) do update set
    api_key = excluded.api_key,
    set_by = excluded.set_by,
    rotated_at = now();
`

const QDeleteProviderKey = `--sql 9e4a1d73-2b85-4f06-8c3e-d15f7a0b6e29
delete from provider_keys
where provider = $1::text;
`

// QListProviderKeys never returns the key itself.
const QListProviderKeys = `--sql 5a6c9f10-7d2b-4e83-b4a1-c8e03f9d2756
select provider, set_by, right(api_key, 4) as key_suffix, rotated_at
from provider_keys
order by provider;
`
